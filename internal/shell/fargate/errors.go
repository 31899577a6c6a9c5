package fargate

import (
	"errors"

	smithy "github.com/aws/smithy-go"
)

var (
	// ErrNoDefaultVPC is returned when the account has no default VPC to place
	// clusters into.
	ErrNoDefaultVPC = errors.New("no default VPC found")

	// ErrNoSubnets is returned when the default VPC has no subnets.
	ErrNoSubnets = errors.New("no subnets found in VPC")

	// ErrNoImagePublisher is returned when a build context must be published
	// but the Applier was created without a publisher.
	ErrNoImagePublisher = errors.New("no image publisher configured for build contexts")

	// ErrUnresolvedInput is returned when a resource is realized before an
	// upstream Output it reads has settled.
	ErrUnresolvedInput = errors.New("upstream output not resolved")

	// ErrEmptyResponse is returned when AWS accepts a create call but returns
	// nothing describing the created resource.
	ErrEmptyResponse = errors.New("empty response from AWS")
)

// hasErrorCode reports whether err is an AWS API error with one of codes.
func hasErrorCode(err error, codes ...string) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	for _, c := range codes {
		if apiErr.ErrorCode() == c {
			return true
		}
	}
	return false
}
