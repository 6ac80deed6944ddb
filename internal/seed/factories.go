// Package seed provides helpers to create demo data for the marketplace
// database. These helpers are intended for development and testing only.
package seed

import (
	"context"
	"fmt"
	"strings"
	"time"

	"marketplace/internal/models"

	"github.com/brianvoe/gofakeit/v6"
)

var (
	categories = []string{"electronics", "maison", "mode", "sport", "jardin", "voyage", "alimentation", "jeux-video"}
	brands     = []string{"Samsung", "Apple", "Decathlon", "Ikea", "Sony", "Philips", "Nike", "Lego"}
	regions    = []string{"Île-de-France", "Bretagne", "Occitanie", "Normandie", "Provence"}
	merchands  = []string{"lidl", "carrefour", "auchan", "leclerc", "intermarche"}
)

// UserRegistrar stores new accounts.
type UserRegistrar interface {
	Register(ctx context.Context, user *models.User) error
}

// Factory builds domain entities with realistic fake values.
type Factory struct {
	faker *gofakeit.Faker
	users UserRegistrar
}

// NewFactory creates a Factory. A zero seed draws from the clock.
func NewFactory(users UserRegistrar, seed int64) *Factory {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Factory{faker: gofakeit.New(seed), users: users}
}

// CreateUser constructs and persists a sample user. Optional overrides may
// modify the generated user before saving.
func (f *Factory) CreateUser(ctx context.Context, overrides ...func(*models.User)) (*models.User, error) {
	first := f.faker.FirstName()
	user := &models.User{
		Name:            fmt.Sprintf("%s%d", strings.ToLower(first), f.faker.Number(100, 999)),
		Email:           fmt.Sprintf("%s.%s@example.com", strings.ToLower(first), f.faker.UUID()[:8]),
		ImageURL:        fmt.Sprintf("https://i.pravatar.cc/150?u=%s", f.faker.UUID()),
		IsTrusted:       f.faker.Number(1, 10) == 1,
		IsEmailVerified: f.faker.Number(1, 10) > 1,
		CreatedAt:       f.faker.DateRange(time.Now().AddDate(-2, 0, 0), time.Now()),
	}
	for _, override := range overrides {
		override(user)
	}
	if err := f.users.Register(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// Category picks one of the demo categories.
func (f *Factory) Category() string {
	return f.faker.RandomString(categories)
}

// Merchand picks one of the demo catalogue merchands.
func (f *Factory) Merchand() string {
	return f.faker.RandomString(merchands)
}

// BuildContent constructs an unsaved content variant of type p.
func (f *Factory) BuildContent(p models.PostType, overrides ...func(*models.ContentItem)) (models.Content, error) {
	content, err := models.NewContent(p)
	if err != nil {
		return nil, err
	}

	item := content.Item()
	item.Title = truncate(f.faker.Sentence(f.faker.Number(3, 8)), 100)
	item.Description = f.faker.Paragraph(1, 3, 12, "\n")
	item.Category = f.Category()
	item.Brand = f.faker.RandomString(brands)
	item.Region = f.faker.RandomString(regions)
	item.City = f.faker.City()
	item.Tags = strings.Join([]string{f.faker.Word(), f.faker.Word()}, ",")

	switch v := content.(type) {
	case *models.Deal:
		price := f.faker.Price(20, 900)
		sale := price * (1 - float64(f.faker.Number(10, 60))/100)
		v.Price, v.SalePrice = &price, &sale
		v.Link = f.faker.URL()
		v.FreeDelivery = f.faker.Bool()
		if f.faker.Bool() {
			end := time.Now().AddDate(0, 0, f.faker.Number(1, 30))
			item.EndDate = &end
		}
	case *models.Free:
		stock := f.faker.Number(1, 50)
		v.Stock = &stock
		v.Link = f.faker.URL()
	case *models.PromoCode:
		v.Code = strings.ToUpper(f.faker.LetterN(6)) + fmt.Sprint(f.faker.Number(10, 99))
		v.Discount = fmt.Sprintf("-%d%%", f.faker.Number(5, 50))
		v.Link = f.faker.URL()
	}

	for _, override := range overrides {
		override(item)
	}
	return content, nil
}

// CommentText returns a short fake comment.
func (f *Factory) CommentText() string {
	return f.faker.Sentence(f.faker.Number(4, 14))
}

// Chance reports true with probability pct percent.
func (f *Factory) Chance(pct int) bool {
	return f.faker.Number(1, 100) <= pct
}

// Pick returns a random index in [0, n).
func (f *Factory) Pick(n int) int {
	return f.faker.Number(0, n-1)
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
