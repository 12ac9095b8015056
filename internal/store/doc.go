// Package store persists pipeline results.
//
// Each saved run is a pretty-printed JSON file, plus an optional annotated
// PNG, in the results directory. A SQLite index (modernc.org/sqlite, schema
// managed by embedded golang-migrate migrations) maps run IDs and file names
// to those files so runs can be listed newest first and fetched by either key.
package store
