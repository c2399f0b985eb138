// Package app composes the Clicklone services into a running application.
//
//	internal/app/
//	├── application.go   # wiring and lifecycle
//	├── backend.go       # storage driver selection
//	├── domain/          # data types shared by services and stores
//	├── flow/            # funnel state machine
//	├── storage/         # store interfaces plus memory, postgres, supabase
//	├── services/        # business logic (funnel, gate, checkout, ...)
//	├── httpapi/         # REST and websocket handlers
//	├── system/          # lifecycle manager
//	└── metrics/         # Prometheus collectors
//
// Business rules live in services; this package only builds them from
// config and starts the background jobs.
package app
