// Package catalog defines the source/candidate data model and the client
// contract for the external music catalog. The concrete transport lives in
// the bridge subpackage.
package catalog
