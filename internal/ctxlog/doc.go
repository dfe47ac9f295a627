// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

// Package ctxlog carries a *slog.Logger in a context.Context.
//
// The default logger writes to stderr through PrettyHandler, which prints a timestamp,
// a coloured level, the message and the record attributes as indented JSON.
// The level is read once from <EXECUTABLE>_LOG_LEVEL (for example BATCHRUN_LOG_LEVEL)
// and can be changed at runtime through LevelVar.
package ctxlog
