// Package cryptoutil verifies asset bundle integrity: digest parsing and
// constant-time comparison, and signature checks against an AWS KMS
// asymmetric key whose public half is fetched once and verified locally.
package cryptoutil
