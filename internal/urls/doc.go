// Package urls provides centralized constants for the documentation URLs
// shown in help text and troubleshooting hints.
//
// Usage:
//
//	import "github.com/witransfer/witransfer/internal/urls"
//
//	fmt.Printf("For more information, see: %s\n", urls.Troubleshooting)
package urls
