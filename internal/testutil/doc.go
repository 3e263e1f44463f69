// Package testutil contains helper builders and fakes used across tests to
// reduce boilerplate when constructing train dialogs and entity definitions
// and when observing storage traffic. They are not intended for production
// usage.
package testutil
