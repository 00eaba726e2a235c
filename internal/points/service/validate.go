package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gosimple/slug"
	"github.com/smallbiznis/edupoints/internal/points/domain"
)

// normalizeCategory turns free-form tags like "Concept Explanation" into
// "concept-explanation". Underscores survive, so "milestone_completion" is kept.
func normalizeCategory(category string) string {
	return slug.Make(strings.TrimSpace(category))
}

func (s *Service) normalizeEarn(req domain.EarnRequest) (domain.EarnRequest, error) {
	req.UserID = strings.TrimSpace(req.UserID)
	req.Category = normalizeCategory(req.Category)
	req.Reason = strings.TrimSpace(req.Reason)
	req.SourceID = strings.TrimSpace(req.SourceID)
	req.SourceType = strings.TrimSpace(req.SourceType)
	if err := s.validate.Struct(req); err != nil {
		return req, validationErr(err)
	}
	return req, nil
}

func (s *Service) normalizeSpend(req domain.SpendRequest) (domain.SpendRequest, error) {
	req.UserID = strings.TrimSpace(req.UserID)
	req.Category = normalizeCategory(req.Category)
	req.Reason = strings.TrimSpace(req.Reason)
	req.SourceID = strings.TrimSpace(req.SourceID)
	req.SourceType = strings.TrimSpace(req.SourceType)
	if err := s.validate.Struct(req); err != nil {
		return req, validationErr(err)
	}
	return req, nil
}

func (s *Service) normalizeUser(userID string) (string, error) {
	userID = strings.TrimSpace(userID)
	if err := s.validate.Var(userID, "required,max=64"); err != nil {
		return "", fmt.Errorf("%w: %s", domain.ErrInvalidUser, err.Error())
	}
	return userID, nil
}

// validationErr maps the first failing field onto its sentinel.
func validationErr(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return fmt.Errorf("%w: %s", domain.ErrInvalidRequest, err.Error())
	}

	fe := fieldErrs[0]
	sentinel := domain.ErrInvalidRequest
	switch fe.Field() {
	case "UserID":
		sentinel = domain.ErrInvalidUser
	case "Category":
		sentinel = domain.ErrInvalidCategory
	case "Amount":
		sentinel = domain.ErrInvalidAmount
	case "QualityScore":
		sentinel = domain.ErrInvalidQualityScore
	}
	return fmt.Errorf("%w: %s failed %s", sentinel, strings.ToLower(fe.Field()), fe.Tag())
}
