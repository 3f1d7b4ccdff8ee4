// Package core contains the integration domain contracts, entities, and
// orchestration logic. Providers and stores depend on this package; core
// must not depend on provider-specific or storage-specific adapters.
package core
