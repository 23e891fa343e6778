// SPDX-License-Identifier: MPL-2.0

// Package issue provides actionable error handling with user-friendly messages.
//
// ActionableError carries the failed operation, the resource involved and
// suggestions for the user. Issues are Markdown documents, rendered with
// glamour, that explain a class of infrastructure failure (a worker that could
// not be launched, a missing container image, a broken channel) in detail.
package issue
