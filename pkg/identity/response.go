package identity

import (
	"fmt"

	"github.com/Gobusters/ectolinq"

	"github.com/Ramsey-B/iris/pkg/models"
)

// BuildResponse assembles the consolidated view of cluster, which must be ordered oldest first.
// The primary's values lead; later duplicates are dropped.
func BuildResponse(primaryID int64, cluster []models.Contact) (*models.ConsolidatedContact, error) {
	var primary *models.Contact
	for i := range cluster {
		if cluster[i].ID == primaryID {
			primary = &cluster[i]
			break
		}
	}
	if primary == nil {
		return nil, fmt.Errorf("%w: primary %d", ErrPrimaryNotInCluster, primaryID)
	}

	resp := &models.ConsolidatedContact{
		PrimaryContactID:    primaryID,
		Emails:              []string{},
		PhoneNumbers:        []string{},
		SecondaryContactIDs: []int64{},
	}
	resp.Emails = appendUnique(resp.Emails, primary.Email)
	resp.PhoneNumbers = appendUnique(resp.PhoneNumbers, primary.PhoneNumber)

	for _, c := range cluster {
		if c.ID == primaryID {
			continue
		}
		resp.Emails = appendUnique(resp.Emails, c.Email)
		resp.PhoneNumbers = appendUnique(resp.PhoneNumbers, c.PhoneNumber)
		resp.SecondaryContactIDs = append(resp.SecondaryContactIDs, c.ID)
	}

	return resp, nil
}

func appendUnique(values []string, v *string) []string {
	if v == nil || *v == "" || ectolinq.Contains(values, *v) {
		return values
	}
	return append(values, *v)
}

// bringsNewInfo reports whether the observation carries an email or phone the cluster lacks.
func bringsNewInfo(cluster []models.Contact, email, phone *string) bool {
	if email != nil && !ectolinq.Contains(values(cluster, func(c models.Contact) *string { return c.Email }), *email) {
		return true
	}
	if phone != nil && !ectolinq.Contains(values(cluster, func(c models.Contact) *string { return c.PhoneNumber }), *phone) {
		return true
	}
	return false
}

func values(cluster []models.Contact, field func(models.Contact) *string) []string {
	out := make([]string, 0, len(cluster))
	for _, c := range cluster {
		if v := field(c); v != nil {
			out = append(out, *v)
		}
	}
	return out
}
