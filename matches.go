package main

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/PKBEATS21/compat-study-find/matching"
)

type matchesBody struct {
	Ready   bool                      `json:"ready"`
	Count   int                       `json:"count"`
	Matches []matching.MatchCandidate `json:"matches"`
}

type notReadyBody struct {
	Ready    bool                      `json:"ready"`
	Reason   string                    `json:"reason"`
	Guidance string                    `json:"guidance"`
	Matches  []matching.MatchCandidate `json:"matches"`
}

// rankFor runs one pass and shapes the outcome the way /matches answers it.
// A nil body with an error means the failure has no client facing form.
func rankFor(ctx context.Context, ranker *matching.Ranker, id uuid.UUID, limit int) (int, any, error) {
	list, err := ranker.Rank(ctx, id)
	switch {
	case err == nil:
		if limit > 0 && len(list) > limit {
			list = list[:limit]
		}
		if list == nil {
			list = []matching.MatchCandidate{}
		}
		return http.StatusOK, matchesBody{Ready: true, Count: len(list), Matches: list}, nil

	case errors.Is(err, matching.ErrNoSubjects):
		// Zero subjects always reads as no_subjects.
		rd := matching.CheckReadiness(nil, nil, 0)
		return http.StatusOK, notReadyBody{
			Reason:   rd.Reason,
			Guidance: rd.Guidance,
			Matches:  []matching.MatchCandidate{},
		}, nil

	case errors.Is(err, matching.ErrIncompleteProfile):
		return http.StatusForbidden, map[string]string{"error": matching.ReasonIncompleteProfile}, nil
	}
	return 0, nil, err
}

func matchesHandler(ranker *matching.Ranker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := requesterID(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		limit := 0
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 {
				writeError(w, http.StatusBadRequest, "invalid_limit")
				return
			}
			limit = n
		}

		status, body, err := rankFor(r.Context(), ranker, id, limit)
		if err != nil {
			writeStoreError(w, r, err)
			return
		}
		writeJSON(w, status, body)
	}
}
