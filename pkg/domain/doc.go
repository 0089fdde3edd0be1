// Package domain defines the core types shared by the ckan-spatial commands.
//
// This package has no dependencies outside the Go standard library. It names
// the CKAN, harvest and pycsw entities the commands read or write, without
// owning their schemas:
//
//   - Package and SpatialExtra mirror rows of the CKAN database.
//   - HarvestReportRow is one line of the harvested metadata validation report.
//   - Record is one row of a pycsw records repository.
//
// Infrastructure packages (storage, pycsw, ckanapi) depend on these types.
// The dependency direction is always:
//
//	Infrastructure → Domain (CORRECT)
//	Domain → Infrastructure (FORBIDDEN)
package domain
