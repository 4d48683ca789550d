// Copyright (c) 2025 Archmagece
// SPDX-License-Identifier: MIT

package main

const version = "0.1.0"
