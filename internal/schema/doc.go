// Package schema defines the on-device data model of the training journal.
//
// # Overview
//
// The whole local state is a single JSON document persisted under one key:
//
//	{
//	  "schemaVersion": "v1.2.0",
//	  "level": 3,
//	  "exp": 40,
//	  "stats": {"forehand": 4, "backhand": 2, "serve": 3, "volley": 1, "footwork": 2, "mental": 1},
//	  "gearColor": "#2a9d8f",
//	  "profileName": "jin",
//	  "onboardingComplete": true,
//	  "logs": [ ... ]
//	}
//
// Logs are kept in insertion order on disk and presented newest first
// (see SortLogs). Each log carries the exact stat delta that was applied to
// the profile when it was saved, so stat totals can always be rebuilt from
// the logs alone.
//
// # Details
//
// The shape of a log's "details" object depends on the log type:
//
//	game:              {"matchCount": 2, "games": [{"type": "doubles", "myScore": 6, "oppScore": 4, "result": "win"}], "weather": "sunny"}
//	lesson, practice:  {"tags": ["서브", "풋워크"]}
//
// Decoding picks the variant from the sibling "type" field; see
// DecodeDetails. Consumers switch on the concrete type.
package schema
