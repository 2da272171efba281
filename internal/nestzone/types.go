package nestzone

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ID accepts both numeric and string identifiers from the backend and
// sends numeric ones back as numbers.
type ID string

func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("nestzone: invalid id %s: %w", string(b), err)
	}
	*id = ID(n.String())
	return nil
}

func (id ID) MarshalJSON() ([]byte, error) {
	if id == "" {
		return []byte("null"), nil
	}
	if _, err := strconv.ParseInt(string(id), 10, 64); err == nil {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

// Location is one entry of the location autocomplete.
type Location struct {
	ID   ID     `json:"id"`
	Name string `json:"name"`
}

// Property carries the listing fields the assistant reads; everything else
// the backend returns is ignored.
type Property struct {
	ID               ID       `json:"id,omitempty"`
	Title            string   `json:"title,omitempty"`
	Type             string   `json:"type,omitempty"`
	Price            float64  `json:"price,omitempty"`
	City             string   `json:"city,omitempty"`
	Province         string   `json:"province,omitempty"`
	Country          string   `json:"country,omitempty"`
	FileCityName     string   `json:"fileCityName,omitempty"`
	FileProvinceName string   `json:"fileProvinceName,omitempty"`
	Bedrooms         int      `json:"bedrooms,omitempty"`
	Bathrooms        int      `json:"bathrooms,omitempty"`
	ImageURLs        []string `json:"imageUrls,omitempty"`
}

// CityName prefers the listing's city, falling back to the file city.
func (p Property) CityName() string {
	if p.City != "" {
		return p.City
	}
	return p.FileCityName
}

func (p Property) ProvinceName() string {
	if p.Province != "" {
		return p.Province
	}
	return p.FileProvinceName
}

// TypeLabel is the capitalised property type, "Property" when unknown.
func (p Property) TypeLabel() string {
	t := strings.TrimSpace(p.Type)
	if t == "" {
		return "Property"
	}
	r, n := utf8.DecodeRuneInString(t)
	return string(unicode.ToUpper(r)) + t[n:]
}

// DisplayTitle builds "Apartment in Madrid, Comunidad de Madrid". The
// province is omitted when it repeats the city.
func (p Property) DisplayTitle() string {
	city := p.CityName()
	province := p.ProvinceName()
	location := city
	if province != "" && !strings.EqualFold(province, city) {
		if location != "" {
			location = location + ", " + province
		} else {
			location = province
		}
	}
	return strings.TrimSpace(p.TypeLabel() + " in " + location)
}

// Image returns the first image URL, if any.
func (p Property) Image() string {
	if len(p.ImageURLs) == 0 {
		return ""
	}
	return p.ImageURLs[0]
}

// PropertyFilter is the body of the filter endpoints. Only the location is
// set by the assistant; the rest are passed through from API callers.
type PropertyFilter struct {
	LocationID ID       `json:"locationId,omitempty"`
	Type       string   `json:"type,omitempty"`
	MinPrice   *float64 `json:"minPrice,omitempty"`
	MaxPrice   *float64 `json:"maxPrice,omitempty"`
	Bedrooms   *int     `json:"bedrooms,omitempty"`
	Page       *int     `json:"page,omitempty"`
	Size       *int     `json:"size,omitempty"`
}

// Registration is the body of POST /register.
type Registration struct {
	FirstName                   string `json:"firstName"`
	LastName                    string `json:"lastName"`
	Email                       string `json:"email"`
	Mobile                      string `json:"mobile"`
	Pass                        string `json:"pass"`
	RetypedPass                 string `json:"retypedPass"`
	RoleType                    string `json:"roleType"`
	ConfirmedTermsAndConditions bool   `json:"confirmedTermsAndConditions"`
	ConfirmedToGetUpdates       bool   `json:"confirmedToGetUpdates"`
}

// Bookmark is the body of POST /properties/bookmark.
type Bookmark struct {
	PropertyID ID `json:"propertyId"`
}

// AuthResponse covers the register/authenticate/logout envelopes. The token
// shows up either at the top level or under data depending on the endpoint.
type AuthResponse struct {
	Message string `json:"message,omitempty"`
	Token   string `json:"token,omitempty"`
	Data    struct {
		Token       string `json:"token,omitempty"`
		AccessToken string `json:"accessToken,omitempty"`
		Username    string `json:"username,omitempty"`
	} `json:"data"`
}

// AccessToken returns whichever token field the backend filled in.
func (r *AuthResponse) AccessToken() string {
	if r == nil {
		return ""
	}
	for _, t := range []string{r.Token, r.Data.Token, r.Data.AccessToken} {
		if strings.TrimSpace(t) != "" {
			return strings.TrimSpace(t)
		}
	}
	return ""
}

// UserInfo is the subset of /person/info shown back to the visitor.
type UserInfo struct {
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	Email     string `json:"email,omitempty"`
	Mobile    string `json:"mobile,omitempty"`
	RoleType  string `json:"roleType,omitempty"`
}

type envelope[T any] struct {
	Message string `json:"message,omitempty"`
	Data    T      `json:"data"`
}

type page struct {
	Content []Property `json:"content"`
}

// APIError is returned for non-2xx backend responses.
type APIError struct {
	Status  int
	Path    string
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("nestzone %s: status %d: %s", e.Path, e.Status, e.Message)
	}
	return fmt.Sprintf("nestzone %s: status %d", e.Path, e.Status)
}
