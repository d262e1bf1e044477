// Package specfile parses ensemble spec files.
//
// A spec file is a YAML document naming the ensemble's performers and the
// connections between them. Parsing only checks document shape; referential
// validation happens when the ensemble materializes its workers.
package specfile
