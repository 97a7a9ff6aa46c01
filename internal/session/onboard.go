package session

import (
	"context"

	"docchat/gateway/pkg/api"
)

type SignupInput struct {
	Username  string
	Email     string
	Password  string
	FirstName string
	LastName  string
}

// Onboard creates the account and then, as a separate request, stores the
// name on the profile. A failed profile update is logged and does not undo
// or fail the signup.
func (s *Store) Onboard(ctx context.Context, in SignupInput) (*api.User, error) {
	user, err := s.Signup(ctx, in.Username, in.Email, in.Password)
	if err != nil {
		return nil, err
	}

	if in.FirstName == "" && in.LastName == "" {
		return user, nil
	}

	_, err = s.client.UpdateProfile(ctx, api.UpdateProfileRequest{
		ProfileUpdates: map[string]any{
			"firstName": in.FirstName,
			"lastName":  in.LastName,
		},
	})
	if err != nil {
		s.log.Warn().
			Err(err).
			Str("user_id", user.ID).
			Msg("profile update after signup failed")
	}
	return user, nil
}
