// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

// Package runbatch runs a batch of shell commands with a bounded number of child
// processes alive at once.
//
// ShellExecutor runs a single Command and reduces its output to a Result.
// Pool drains a slice of Commands through an Executor, admitting at most N at a time,
// and returns only when every Command has been run.
package runbatch
