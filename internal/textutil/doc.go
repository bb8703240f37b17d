// Package textutil turns user-supplied titles into filesystem- and URL-safe
// names.
//
// Parameterize produces the slug used in derived attachment filenames:
// accents are folded to their base letters, every other run of
// non-alphanumeric characters becomes a single separator, and the result is
// lowercased. SanitizeFileName keeps the original title readable while
// removing characters that are unsafe in a path.
package textutil
