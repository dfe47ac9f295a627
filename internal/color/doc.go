// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

// Package color wraps strings in ANSI escape sequences for the console log handler.
//
// Output is coloured only when stdout is a terminal (detected with golang.org/x/term),
// unless NO_COLOR or FORCE_COLOR say otherwise.
package color
