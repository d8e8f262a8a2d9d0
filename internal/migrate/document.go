// Package migrate upgrades persisted journal documents to the current
// schema and uploads local journals to the remote backend.
//
// Document versions are semantic versions compared with
// golang.org/x/mod/semver. Documents written before versioning carry no
// version and are treated as VersionLegacy.
//
//	v1.0.0  logs without ids, no profile name or onboarding flag
//	v1.1.0  every log has an id
//	v1.2.0  profileName and onboardingComplete always present
package migrate

import (
	"fmt"

	"golang.org/x/mod/semver"

	"github.com/pixeltennis/pixeltennis/internal/schema"
)

// Known document versions.
const (
	VersionLegacy        = "v1.0.0"
	VersionLogIDs        = "v1.1.0"
	VersionProfileFields = "v1.2.0"

	CurrentVersion = VersionProfileFields
)

type step struct {
	version string
	apply   func(doc *schema.Document, newID func() string) int
}

var steps = []step{
	{version: VersionLogIDs, apply: assignLogIDs},
	{version: VersionProfileFields, apply: profileDefaults},
}

// Options control a document migration.
type Options struct {
	// NewID generates ids for logs that lack one. Defaults to
	// schema.NewLogID.
	NewID func() string
}

// Result reports what a migration changed.
type Result struct {
	From        string
	To          string
	Applied     []string
	AssignedIDs int
	// Newer is set when the document was written by a newer schema; it is
	// left as is.
	Newer bool
}

// Changed reports whether the document was modified.
func (r Result) Changed() bool {
	return len(r.Applied) > 0 || r.AssignedIDs > 0
}

// Document upgrades doc in place to CurrentVersion. It is the identity on
// documents that are already current.
func Document(doc *schema.Document, opts Options) (Result, error) {
	if opts.NewID == nil {
		opts.NewID = schema.NewLogID
	}

	from := doc.SchemaVersion
	if from == "" {
		from = VersionLegacy
	}
	if !semver.IsValid(from) {
		return Result{}, fmt.Errorf("invalid schema version %q", doc.SchemaVersion)
	}

	res := Result{From: from, To: from}
	if semver.Compare(from, CurrentVersion) > 0 {
		res.Newer = true
		return res, nil
	}

	for _, s := range steps {
		if semver.Compare(from, s.version) >= 0 {
			continue
		}
		res.AssignedIDs += s.apply(doc, opts.NewID)
		res.Applied = append(res.Applied, s.version)
		res.To = s.version
	}

	// Imported documents can claim the current version and still lack ids.
	res.AssignedIDs += assignLogIDs(doc, opts.NewID)
	doc.SetDefaults()

	if doc.SchemaVersion != CurrentVersion {
		doc.SchemaVersion = CurrentVersion
		res.To = CurrentVersion
	}
	return res, nil
}

func assignLogIDs(doc *schema.Document, newID func() string) int {
	n := 0
	for i := range doc.Logs {
		if doc.Logs[i].ID == "" {
			doc.Logs[i].ID = newID()
			n++
		}
	}
	return n
}

func profileDefaults(doc *schema.Document, _ func() string) int {
	doc.SetDefaults()
	return 0
}
