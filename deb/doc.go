// Package deb reads Debian binary packages for conversion into other packaging formats.
//
// # Design Philosophy
//
// A .deb is an ar container holding a control archive and a data archive. The package
// fetches .deb files over HTTP into a local cache, unpacks both archives next to the
// download and parses the control record. Nothing here shells out to 'dpkg' or 'ar',
// so the conversion runs the same on hosts that are not Debian based.
//
// # Features
//
// Archives:
//   - Download .deb files into an idempotent on-disk cache.
//   - Extract control.tar and data.tar compressed with gzip, xz, zstd, bzip2 or nothing.
//   - Reject archive members that would escape the extraction directory.
//
// Control data:
//   - Parse the control record, including folded fields and the extended description.
//   - Merge Depends, Recommends and Suggests into a single relation list.
//   - Split relations into OR-groups and drop version constraints.
//
// Versioning:
//   - Extract the upstream part of a Debian version (no epoch, no revision).
package deb
