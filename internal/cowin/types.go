package cowin

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// DateLayout is the DD/MM/YYYY layout the CoWIN API expects for calendar queries.
const DateLayout = "02/01/2006"

// State is an Indian state as returned by the location directory.
type State struct {
	StateID   int    `json:"state_id"`
	StateName string `json:"state_name"`
}

// District is a district within a state.
type District struct {
	DistrictID   int    `json:"district_id"`
	DistrictName string `json:"district_name"`
}

// Session is a single vaccination session at a center on a given date.
type Session struct {
	Date              string `json:"date"`
	Vaccine           string `json:"vaccine"`
	MinAgeLimit       int    `json:"min_age_limit"`
	AvailableCapacity int    `json:"available_capacity"`
}

// Center is a vaccination center with its week of sessions.
type Center struct {
	Name     string    `json:"name"`
	Pincode  Pincode   `json:"pincode"`
	FeeType  string    `json:"fee_type"`
	Sessions []Session `json:"sessions"`
}

// Pincode is a postal code. The API serves it as a JSON number while
// users type it as text, so it decodes from either form.
type Pincode string

// UnmarshalJSON accepts both `110001` and `"110001"`.
func (p *Pincode) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*p = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*p = Pincode(s)
		return nil
	}
	var n int64
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("pincode: %w", err)
	}
	*p = Pincode(strconv.FormatInt(n, 10))
	return nil
}

func (p Pincode) String() string { return string(p) }

// ProviderError reports a failed CoWIN API call. Every adapter failure,
// transport or HTTP, surfaces as this single kind.
type ProviderError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("cowin: %s: unexpected status %d", e.Op, e.StatusCode)
	}
	if e.Err != nil {
		return fmt.Sprintf("cowin: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("cowin: %s failed", e.Op)
}

func (e *ProviderError) Unwrap() error { return e.Err }

type statesResponse struct {
	States []State `json:"states"`
}

type districtsResponse struct {
	Districts []District `json:"districts"`
}

type calendarResponse struct {
	Centers []Center `json:"centers"`
}
