// Package sqliteexternal provides the optional CGO SQLite driver.
//
// To use the CGO driver (github.com/mattn/go-sqlite3), build with:
//
//	CGO_ENABLED=1 go build -tags cgo_sqlite ./...
//
// core/sqlite then registers connections under the "sqlite3" driver name
// instead of the pure Go "sqlite" driver. ATTACH, DETACH and the pragma
// table-valued functions used by the catalog behave the same with both.
//
// # When to Use
//
// Use this package when:
//   - Performance is critical for large attached databases
//   - You need specific SQLite extensions
//   - You already have CGO in your build pipeline
//
// Use the default pure Go driver when:
//   - Portability is important
//   - Cross-compilation is required
//   - You want simpler deployment (single binary)
package sqliteexternal
