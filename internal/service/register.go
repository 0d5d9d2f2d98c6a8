package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"gigmarket/internal/apperr"
	"gigmarket/internal/notify"
	"gigmarket/internal/repository"
	"gigmarket/models"

	"github.com/google/uuid"
)

const (
	UserTypeOrganization = "OR"
	UserTypeGigWorker    = "GW"
	UserTypeOverEmployee = "OE"
)

const msgEmailTaken = "A user with this email already exists."

func rolesFor(userType string) []string {
	switch userType {
	case UserTypeOrganization:
		return []string{string(models.RoleAdmin)}
	case UserTypeGigWorker:
		return []string{string(models.RoleCustomer), string(models.RoleGigWorker)}
	case UserTypeOverEmployee:
		return []string{string(models.RoleCustomer), string(models.RoleOverEmployee)}
	default:
		return []string{string(models.RoleCustomer)}
	}
}

// Register создаёт пользователя, а для организаций - ещё организацию и членство в ней.
// Письмо с подтверждением уходит после фиксации транзакции.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	errs := map[string]string{}
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.OrganizationName = strings.TrimSpace(in.OrganizationName)

	if in.FirstName == "" {
		errs["first_name"] = msgRequired
	}
	if in.LastName == "" {
		errs["last_name"] = msgRequired
	}
	if in.Email == "" {
		errs["email"] = msgRequired
	} else if addr, err := mail.ParseAddress(in.Email); err != nil || addr.Address != in.Email {
		errs["email"] = "Enter a valid email address."
	}
	isOrg := in.UserType == UserTypeOrganization
	if isOrg && in.OrganizationName == "" {
		errs["organization_name"] = msgRequired
	}
	if err := invalid(errs); err != nil {
		return nil, err
	}

	now := s.now()
	user := &models.User{
		FirstName:         in.FirstName,
		LastName:          in.LastName,
		Email:             in.Email,
		Country:           strings.TrimSpace(in.Country),
		Roles:             rolesFor(in.UserType),
		IsActive:          true,
		VerificationToken: strings.ReplaceAll(uuid.NewString(), "-", ""),
		CreatedOn:         now,
	}

	err := s.store.InTx(ctx, func(tx repository.Repo) error {
		taken, err := tx.EmailTaken(ctx, user.Email)
		if err != nil {
			return err
		}
		if taken {
			return apperr.Invalid(map[string]string{"email": msgEmailTaken})
		}

		var org *models.Organization
		if isOrg {
			org = &models.Organization{
				Name:    in.OrganizationName,
				Country: user.Country,
				Audit:   models.Audit{IsActive: true, CreatedOn: now},
			}
			if err := tx.CreateOrganization(ctx, org); err != nil {
				return err
			}
			user.HasOrganization = true
			user.OrganizationID = &org.ID
		}

		if err := tx.CreateUser(ctx, user); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return apperr.Invalid(map[string]string{"email": msgEmailTaken})
			}
			return err
		}
		if org == nil {
			return nil
		}
		return tx.CreateCoWorker(ctx, &models.CoWorker{
			UserID:         user.ID,
			OrganizationID: org.ID,
			IsAccepted:     true,
			Audit:          models.NewAudit(user.ID, now),
		})
	})
	if err != nil {
		return nil, wrap("register", err)
	}

	s.afterCommit(notify.NewMessage(user.Email, notify.TemplateUserVerification, map[string]string{
		"name": user.FullName(),
		"link": fmt.Sprintf("%s/register-confirm/%d/%s", s.webURL, user.ID, user.VerificationToken),
	}))
	return user, nil
}
