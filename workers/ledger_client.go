package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"quiz-elimination-engine/utils"
)

// LedgerClient reads correct-answer counts from the remote scoring service. It satisfies
// services.ResultLedger.
type LedgerClient struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

type correctCount struct {
	ContestantID uint `json:"contestant_id"`
	Correct      int  `json:"correct"`
}

type correctCountsResponse struct {
	MatchID uint           `json:"match_id"`
	Counts  []correctCount `json:"counts"`
}

func NewLedgerClient(baseURL, token string) *LedgerClient {
	return &LedgerClient{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Token:      token,
		HTTPClient: utils.HTTPClient,
	}
}

func (c *LedgerClient) CorrectCounts(ctx context.Context, matchID uint, contestantIDs []uint) (map[uint]int, error) {
	counts := make(map[uint]int, len(contestantIDs))
	if len(contestantIDs) == 0 {
		return counts, nil
	}

	u, err := url.Parse(fmt.Sprintf("%s/api/v1/matches/%d/correct-counts", c.BaseURL, matchID))
	if err != nil {
		return nil, fmt.Errorf("failed to parse base URL: %w", err)
	}
	ids := make([]string, 0, len(contestantIDs))
	for _, id := range contestantIDs {
		ids = append(ids, strconv.FormatUint(uint64(id), 10))
	}
	q := u.Query()
	q.Set("contestant_ids", strings.Join(ids, ","))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ledger request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		log.Printf("[Ledger] match %d: unexpected status %d: %s", matchID, resp.StatusCode, string(body))
		return nil, fmt.Errorf("ledger returned status %d", resp.StatusCode)
	}

	var payload correctCountsResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode ledger response: %w", err)
	}

	wanted := make(map[uint]bool, len(contestantIDs))
	for _, id := range contestantIDs {
		wanted[id] = true
	}
	for _, cc := range payload.Counts {
		if wanted[cc.ContestantID] {
			counts[cc.ContestantID] = cc.Correct
		}
	}
	return counts, nil
}
