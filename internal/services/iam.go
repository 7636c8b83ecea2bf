package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

// IAMAPI is the subset of the IAM client used by IAMService
type IAMAPI interface {
	GetRole(ctx context.Context, params *iam.GetRoleInput, optFns ...func(*iam.Options)) (*iam.GetRoleOutput, error)
}

// STSAPI is the subset of the STS client used by IAMService
type STSAPI interface {
	GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
}

type IAMService struct {
	client    IAMAPI
	stsClient STSAPI
}

// PolicyDocument is an IAM policy document
type PolicyDocument struct {
	Version   string            `json:"Version"`
	Statement []PolicyStatement `json:"Statement"`
}

// PolicyStatement is a single statement of an IAM policy document.
// Principal values may be a string or a list of strings.
type PolicyStatement struct {
	Effect    string                     `json:"Effect"`
	Principal map[string]json.RawMessage `json:"Principal,omitempty"`
	Action    json.RawMessage            `json:"Action,omitempty"`
}

// Principals returns the principals of the given kind, e.g. "AWS" or "Service"
func (s PolicyStatement) Principals(kind string) []string {
	raw, ok := s.Principal[kind]
	if !ok {
		return nil
	}

	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return []string{single}
	}

	var many []string
	if err := json.Unmarshal(raw, &many); err == nil {
		return many
	}

	return nil
}

func NewIAMService(client IAMAPI, stsClient STSAPI) *IAMService {
	return &IAMService{
		client:    client,
		stsClient: stsClient,
	}
}

// GetAWSAccountID retrieves the AWS account ID
func (s *IAMService) GetAWSAccountID(ctx context.Context) (string, error) {
	result, err := s.stsClient.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return "", fmt.Errorf("failed to get caller identity: %w", err)
	}

	if result.Account == nil {
		return "", fmt.Errorf("account ID is nil")
	}

	return *result.Account, nil
}

// GetRoleTrustPolicy returns the decoded assume role policy of a role
func (s *IAMService) GetRoleTrustPolicy(ctx context.Context, roleName string) (*PolicyDocument, error) {
	result, err := s.client.GetRole(ctx, &iam.GetRoleInput{
		RoleName: aws.String(roleName),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get role %s: %w", roleName, err)
	}

	if result.Role == nil || result.Role.AssumeRolePolicyDocument == nil {
		return nil, fmt.Errorf("role %s has no trust policy", roleName)
	}

	// IAM returns the document URL encoded
	raw, err := url.QueryUnescape(*result.Role.AssumeRolePolicyDocument)
	if err != nil {
		return nil, fmt.Errorf("failed to decode trust policy of %s: %w", roleName, err)
	}

	var doc PolicyDocument
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("failed to parse trust policy of %s: %w", roleName, err)
	}

	return &doc, nil
}

// RoleTrustsAccount reports whether the role can be assumed by principals of the
// caller's account and by nothing else
func (s *IAMService) RoleTrustsAccount(ctx context.Context, roleName string) (bool, error) {
	accountID, err := s.GetAWSAccountID(ctx)
	if err != nil {
		return false, err
	}

	doc, err := s.GetRoleTrustPolicy(ctx, roleName)
	if err != nil {
		return false, err
	}

	trusted := false
	for _, statement := range doc.Statement {
		if statement.Effect != "Allow" {
			continue
		}
		for _, principal := range statement.Principals("AWS") {
			if !accountPrincipal(principal, accountID) {
				return false, nil
			}
			trusted = true
		}
	}

	return trusted, nil
}

func accountPrincipal(principal, accountID string) bool {
	if principal == accountID {
		return true
	}
	return strings.HasPrefix(principal, "arn:") && strings.HasSuffix(principal, ":iam::"+accountID+":root")
}
