// Package testutil contains helper builders and fakes used across tests to
// reduce boilerplate when constructing turns and sessions and when
// asserting outbound notifications. They are not intended for production
// usage.
package testutil
