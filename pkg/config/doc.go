// Package config loads typed configuration structs from environment
// variables, with optional .env support for local development.
//
// Every component of the billing service declares its own small Config
// struct next to its constructor (database, Redis, provider credentials,
// webhook secrets); this package is the single place they all parse from.
package config
