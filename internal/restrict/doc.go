// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package restrict sandboxes the server with the [Landlock] Linux Security
// Module once it knows what it serves and where. On systems without Landlock
// it does nothing.
//
// [Landlock]: https://landlock.io
package restrict
