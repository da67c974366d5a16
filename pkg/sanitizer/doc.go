// Package sanitizer cleans free-form request input before validation.
//
// All functions are idempotent: applying them twice gives the same result as
// applying them once. Invalid input is never an error; it is cleaned or
// reduced to the empty string.
//
// Cleaning includes:
//   - Strings: collapse whitespace, trim leading/trailing spaces
//   - Plates: strip control characters, keep case for exact matching
//   - Filter choices: "female" and " FEMALE " both become "Female"
//   - Sources: keep only the file name of an uploaded path, capped in length
//   - Slices: remove duplicates and empty values after cleaning
package sanitizer
