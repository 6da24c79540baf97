// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package sqlitedriver registers the pure-Go modernc.org/sqlite driver
// under the database/sql name "sqlite3". No CGO toolchain is required,
// which keeps chronicle cross-compilable to every platform the event
// store ships on.
//
// Import this package for its side effects only:
//
//	import _ "github.com/teradata-labs/chronicle/internal/sqlitedriver"
package sqlitedriver
