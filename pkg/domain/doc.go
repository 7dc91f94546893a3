// Package domain defines the core business types and errors for the answer gateway.
//
// This package contains pure domain logic with ZERO external dependencies outside the
// Go standard library. All types in this package are:
//
// - Independent of infrastructure (no HTTP, storage, upstream coupling)
// - Technology-agnostic (no framework coupling)
// - Testable in isolation without mocks
//
// Other packages (gateway, upstream, enrich, audit, storage) implement behavior
// around these types and depend on them. The dependency direction is always:
//
//	Infrastructure → Domain (CORRECT)
//	Domain → Infrastructure (FORBIDDEN)
package domain
