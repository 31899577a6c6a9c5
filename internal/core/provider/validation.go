package provider

import (
	"errors"
	"regexp"
)

// =============================================================================
// Credential Validation (Pure - no I/O)
// =============================================================================

var (
	ErrAWSAccessKeyRequired = errors.New("AWS access key ID is required when a secret key is set")
	ErrAWSSecretKeyRequired = errors.New("AWS secret access key is required when an access key is set")
	ErrAWSRegionRequired    = errors.New("AWS region is required")
	ErrAWSRegionInvalid     = errors.New("AWS region is not well formed")
)

var regionPattern = regexp.MustCompile(`^[a-z]{2}(-gov)?-[a-z]+-\d$`)

// AWSCredentials represents optional static AWS access credentials.
// Leaving both fields empty selects the default credential chain.
type AWSCredentials struct {
	AccessKeyID     string `json:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key"`
}

// Static reports whether explicit keys are configured.
func (c AWSCredentials) Static() bool {
	return c.AccessKeyID != "" || c.SecretAccessKey != ""
}

// ValidateAWSCredentials checks that static keys are given as a pair.
func ValidateAWSCredentials(creds AWSCredentials) error {
	if creds.AccessKeyID == "" && creds.SecretAccessKey != "" {
		return ErrAWSAccessKeyRequired
	}
	if creds.AccessKeyID != "" && creds.SecretAccessKey == "" {
		return ErrAWSSecretKeyRequired
	}
	return nil
}

// ValidateAWSRegion checks that region looks like "us-east-1".
func ValidateAWSRegion(region string) error {
	if region == "" {
		return ErrAWSRegionRequired
	}
	if !regionPattern.MatchString(region) {
		return ErrAWSRegionInvalid
	}
	return nil
}
