package main

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/PKBEATS21/compat-study-find/matching"
)

// ownRecord loads the caller's profile, preferences and subject count. A
// preferences row that no longer decodes is treated as missing.
func ownRecord(ctx context.Context, s matching.RecordStore, id uuid.UUID) (*matching.Profile, *matching.Preferences, int, error) {
	profile, err := s.GetProfile(ctx, id)
	if err != nil {
		return nil, nil, 0, matching.AsStoreError("get_profile", err)
	}
	prefs, err := s.GetPreferences(ctx, id)
	if err != nil {
		if !errors.Is(err, matching.ErrMalformedRecord) {
			return nil, nil, 0, matching.AsStoreError("get_preferences", err)
		}
		zerolog.Ctx(ctx).Warn().Err(err).Msg("Ignoring undecodable preferences")
		prefs = nil
	}
	subjects, err := s.GetSubjects(ctx, id)
	if err != nil {
		return nil, nil, 0, matching.AsStoreError("get_subjects", err)
	}
	return profile, prefs, len(subjects), nil
}

func readinessHandler(s matching.RecordStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := requesterID(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		profile, prefs, subjects, err := ownRecord(r.Context(), s, id)
		if err != nil {
			writeStoreError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, matching.CheckReadiness(profile, prefs, subjects))
	}
}

func completionHandler(s matching.RecordStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := requesterID(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		profile, prefs, subjects, err := ownRecord(r.Context(), s, id)
		if err != nil {
			writeStoreError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, matching.Completion(profile, prefs, subjects))
	}
}
