// Package sanitizer normalizes caller input before validation and storage.
//
// Nothing here fails. Input that normalizes to nothing comes back empty and
// validation rejects it. Emails are lowercased so every lookup by email is
// case-insensitive.
package sanitizer
