package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/sakif/foodgram/internal/apperror"
	"github.com/sakif/foodgram/internal/auth"
	"github.com/sakif/foodgram/internal/imagedata"
	"github.com/sakif/foodgram/internal/model"
	"github.com/sakif/foodgram/internal/repository"
)

// =========================================================================
// IN-MEMORY FAKES
// =========================================================================
//
// memDB holds the state shared by every fake repository, the way the real
// sub-repositories share one SQLite connection. The fakes mirror the
// constraint behaviour of the sqlite package: duplicate pairs are
// conflicts, missing rows are not-found errors.

type pair [2]int64

type memDB struct {
	nextID      int64
	users       map[int64]*model.User
	ingredients map[int64]model.Ingredient
	recipes     map[int64]*model.Recipe
	favorites   map[pair]bool
	cart        map[pair]bool
	subs        map[pair]bool
	links       map[string]int64
}

func newMemDB() *memDB {
	return &memDB{
		users:       make(map[int64]*model.User),
		ingredients: make(map[int64]model.Ingredient),
		recipes:     make(map[int64]*model.Recipe),
		favorites:   make(map[pair]bool),
		cart:        make(map[pair]bool),
		subs:        make(map[pair]bool),
		links:       make(map[string]int64),
	}
}

func (m *memDB) id() int64 {
	m.nextID++
	return m.nextID
}

// ---- users ----

type fakeUserRepo struct{ db *memDB }

func (f *fakeUserRepo) Create(_ context.Context, user *model.User) error {
	for _, u := range f.db.users {
		if u.Email == user.Email {
			return apperror.ValidationFailed("email", "a user with this email already exists")
		}
		if u.Username == user.Username {
			return apperror.ValidationFailed("username", "a user with this username already exists")
		}
	}
	user.ID = f.db.id()
	stored := *user
	f.db.users[user.ID] = &stored
	return nil
}

func (f *fakeUserRepo) GetByID(_ context.Context, id int64) (*model.User, error) {
	u, ok := f.db.users[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	result := *u
	return &result, nil
}

func (f *fakeUserRepo) GetByEmail(_ context.Context, email string) (*model.User, error) {
	for _, u := range f.db.users {
		if strings.EqualFold(u.Email, email) {
			result := *u
			return &result, nil
		}
	}
	return nil, apperror.NotFound("user", email)
}

func (f *fakeUserRepo) GetByGitHubID(_ context.Context, githubID int64) (*model.User, error) {
	for _, u := range f.db.users {
		if u.GitHubID != nil && *u.GitHubID == githubID {
			result := *u
			return &result, nil
		}
	}
	return nil, apperror.NotFound("user", githubID)
}

func (f *fakeUserRepo) Upsert(ctx context.Context, user *model.User) error {
	existing, err := f.GetByGitHubID(ctx, *user.GitHubID)
	if err != nil {
		return f.Create(ctx, user)
	}
	stored := f.db.users[existing.ID]
	stored.FirstName = user.FirstName
	stored.LastName = user.LastName
	*user = *stored
	return nil
}

func (f *fakeUserRepo) List(_ context.Context, viewerID int64, opts repository.ListOptions) ([]model.User, int, error) {
	all := make([]model.User, 0, len(f.db.users))
	for _, u := range f.db.users {
		c := *u
		c.IsSubscribed = f.db.subs[pair{viewerID, u.ID}]
		all = append(all, c)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	return paginate(all, opts), len(all), nil
}

func (f *fakeUserRepo) UpdatePassword(_ context.Context, id int64, hash string) error {
	u, ok := f.db.users[id]
	if !ok {
		return apperror.NotFound("user", id)
	}
	u.PasswordHash = hash
	return nil
}

func (f *fakeUserRepo) UpdateAvatar(_ context.Context, id int64, avatar string) error {
	u, ok := f.db.users[id]
	if !ok {
		return apperror.NotFound("user", id)
	}
	u.Avatar = avatar
	return nil
}

// ---- ingredients ----

type fakeIngredientRepo struct{ db *memDB }

func (f *fakeIngredientRepo) Search(_ context.Context, prefix string) ([]model.Ingredient, error) {
	result := []model.Ingredient{}
	for _, ing := range f.db.ingredients {
		if strings.HasPrefix(strings.ToLower(ing.Name), strings.ToLower(prefix)) {
			result = append(result, ing)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func (f *fakeIngredientRepo) GetByID(_ context.Context, id int64) (*model.Ingredient, error) {
	ing, ok := f.db.ingredients[id]
	if !ok {
		return nil, apperror.NotFound("ingredient", id)
	}
	return &ing, nil
}

func (f *fakeIngredientRepo) MissingIDs(_ context.Context, ids []int64) ([]int64, error) {
	var missing []int64
	for _, id := range ids {
		if _, ok := f.db.ingredients[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing, nil
}

func (f *fakeIngredientRepo) CreateIfMissing(_ context.Context, ing *model.Ingredient) (bool, error) {
	for _, existing := range f.db.ingredients {
		if existing.Name == ing.Name && existing.MeasurementUnit == ing.MeasurementUnit {
			ing.ID = existing.ID
			return false, nil
		}
	}
	ing.ID = f.db.id()
	f.db.ingredients[ing.ID] = *ing
	return true, nil
}

// ---- recipes ----

type fakeRecipeRepo struct {
	db *memDB
	// set to a non-nil error to simulate a failing write
	writeErr error
}

func (f *fakeRecipeRepo) Create(_ context.Context, recipe *model.Recipe) error {
	if f.writeErr != nil {
		return f.writeErr
	}
	recipe.ID = f.db.id()
	f.store(recipe)
	return nil
}

func (f *fakeRecipeRepo) Update(_ context.Context, recipe *model.Recipe) error {
	if f.writeErr != nil {
		return f.writeErr
	}
	if _, ok := f.db.recipes[recipe.ID]; !ok {
		return apperror.NotFound("recipe", recipe.ID)
	}
	f.store(recipe)
	return nil
}

func (f *fakeRecipeRepo) store(recipe *model.Recipe) {
	stored := *recipe
	stored.Author = nil
	stored.Ingredients = make([]model.RecipeIngredient, len(recipe.Ingredients))
	for i, ri := range recipe.Ingredients {
		ing := f.db.ingredients[ri.ID]
		stored.Ingredients[i] = model.RecipeIngredient{
			ID:              ri.ID,
			Name:            ing.Name,
			MeasurementUnit: ing.MeasurementUnit,
			Amount:          ri.Amount,
		}
	}
	f.db.recipes[recipe.ID] = &stored
}

func (f *fakeRecipeRepo) Delete(_ context.Context, id int64) error {
	if _, ok := f.db.recipes[id]; !ok {
		return apperror.NotFound("recipe", id)
	}
	delete(f.db.recipes, id)
	for _, set := range []map[pair]bool{f.db.favorites, f.db.cart} {
		for p := range set {
			if p[1] == id {
				delete(set, p)
			}
		}
	}
	return nil
}

func (f *fakeRecipeRepo) GetByID(_ context.Context, id, viewerID int64) (*model.Recipe, error) {
	r, ok := f.db.recipes[id]
	if !ok {
		return nil, apperror.NotFound("recipe", id)
	}
	return f.view(r, viewerID), nil
}

func (f *fakeRecipeRepo) view(r *model.Recipe, viewerID int64) *model.Recipe {
	result := *r
	result.Ingredients = append([]model.RecipeIngredient(nil), r.Ingredients...)
	if author, ok := f.db.users[r.AuthorID]; ok {
		a := *author
		a.IsSubscribed = f.db.subs[pair{viewerID, a.ID}]
		result.Author = &a
	}
	result.IsFavorited = f.db.favorites[pair{viewerID, r.ID}]
	result.IsInShoppingCart = f.db.cart[pair{viewerID, r.ID}]
	return &result
}

func (f *fakeRecipeRepo) sorted() []*model.Recipe {
	all := make([]*model.Recipe, 0, len(f.db.recipes))
	for _, r := range f.db.recipes {
		all = append(all, r)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	return all
}

func (f *fakeRecipeRepo) List(_ context.Context, filter repository.RecipeFilter) ([]model.Recipe, int, error) {
	var matched []model.Recipe
	for _, r := range f.sorted() {
		switch {
		case filter.AuthorID != 0 && r.AuthorID != filter.AuthorID:
			continue
		case filter.FavoritedBy != 0 && !f.db.favorites[pair{filter.FavoritedBy, r.ID}]:
			continue
		case filter.InCartOf != 0 && !f.db.cart[pair{filter.InCartOf, r.ID}]:
			continue
		case !strings.HasPrefix(strings.ToLower(r.Name), strings.ToLower(filter.NamePrefix)):
			continue
		}
		matched = append(matched, *f.view(r, filter.ViewerID))
	}
	return paginate(matched, filter.ListOptions), len(matched), nil
}

func (f *fakeRecipeRepo) ListShort(_ context.Context, authorID int64, limit int) ([]model.RecipeShort, error) {
	result := []model.RecipeShort{}
	for _, r := range f.sorted() {
		if r.AuthorID != authorID {
			continue
		}
		if limit > 0 && len(result) == limit {
			break
		}
		result = append(result, r.Short())
	}
	return result, nil
}

func (f *fakeRecipeRepo) CountByAuthor(_ context.Context, authorID int64) (int, error) {
	n := 0
	for _, r := range f.db.recipes {
		if r.AuthorID == authorID {
			n++
		}
	}
	return n, nil
}

// ---- favorites / cart ----

type fakeRelationRepo struct {
	db  *memDB
	set map[pair]bool
}

func (f *fakeRelationRepo) Add(_ context.Context, userID, recipeID int64) error {
	if _, ok := f.db.recipes[recipeID]; !ok {
		return apperror.NotFound("recipe", recipeID)
	}
	if f.set[pair{userID, recipeID}] {
		return apperror.Conflict("recipe is already added")
	}
	f.set[pair{userID, recipeID}] = true
	return nil
}

func (f *fakeRelationRepo) Remove(_ context.Context, userID, recipeID int64) error {
	if !f.set[pair{userID, recipeID}] {
		return apperror.Missing("recipe is not added")
	}
	delete(f.set, pair{userID, recipeID})
	return nil
}

type fakeCartRepo struct{ fakeRelationRepo }

func (f *fakeCartRepo) Aggregate(_ context.Context, userID int64) ([]model.ShoppingListItem, error) {
	sums := map[[2]string]int64{}
	for p := range f.set {
		if p[0] != userID {
			continue
		}
		for _, ri := range f.db.recipes[p[1]].Ingredients {
			sums[[2]string{ri.Name, ri.MeasurementUnit}] += int64(ri.Amount)
		}
	}

	items := make([]model.ShoppingListItem, 0, len(sums))
	for k, amount := range sums {
		items = append(items, model.ShoppingListItem{Name: k[0], MeasurementUnit: k[1], Amount: amount})
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].Name != items[j].Name {
			return items[i].Name < items[j].Name
		}
		return items[i].MeasurementUnit < items[j].MeasurementUnit
	})
	return items, nil
}

// ---- subscriptions ----

type fakeSubscriptionRepo struct{ db *memDB }

func (f *fakeSubscriptionRepo) Add(_ context.Context, userID, authorID int64) error {
	if _, ok := f.db.users[authorID]; !ok {
		return apperror.NotFound("user", authorID)
	}
	if f.db.subs[pair{userID, authorID}] {
		return apperror.Conflict("already subscribed to this user")
	}
	f.db.subs[pair{userID, authorID}] = true
	return nil
}

func (f *fakeSubscriptionRepo) Remove(_ context.Context, userID, authorID int64) error {
	if !f.db.subs[pair{userID, authorID}] {
		return apperror.Missing("not subscribed to this user")
	}
	delete(f.db.subs, pair{userID, authorID})
	return nil
}

func (f *fakeSubscriptionRepo) Exists(_ context.Context, userID, authorID int64) (bool, error) {
	return f.db.subs[pair{userID, authorID}], nil
}

func (f *fakeSubscriptionRepo) ListAuthors(_ context.Context, userID int64, opts repository.ListOptions) ([]model.User, int, error) {
	var authors []model.User
	for p := range f.db.subs {
		if p[0] == userID {
			a := *f.db.users[p[1]]
			a.IsSubscribed = true
			authors = append(authors, a)
		}
	}
	sort.Slice(authors, func(i, j int) bool { return authors[i].Username < authors[j].Username })
	return paginate(authors, opts), len(authors), nil
}

// ---- short links ----

type fakeShortLinkRepo struct {
	db       *memDB
	resolves int // number of Resolve calls that reached the "database"
}

func (f *fakeShortLinkRepo) GetOrCreate(_ context.Context, recipeID int64, newCode func() string) (string, error) {
	for code, id := range f.db.links {
		if id == recipeID {
			return code, nil
		}
	}
	code := newCode()
	f.db.links[code] = recipeID
	return code, nil
}

func (f *fakeShortLinkRepo) Resolve(_ context.Context, code string) (int64, error) {
	f.resolves++
	id, ok := f.db.links[code]
	if !ok {
		return 0, apperror.NotFound("short link", code)
	}
	return id, nil
}

// ---- images ----

type fakeImageStore struct {
	objects map[string][]byte
	n       int
}

func newFakeImageStore() *fakeImageStore {
	return &fakeImageStore{objects: make(map[string][]byte)}
}

func (f *fakeImageStore) Save(_ context.Context, prefix string, img *imagedata.Image) (string, error) {
	f.n++
	key := fmt.Sprintf("%s/pic_%08d.%s", prefix, f.n, img.Ext)
	f.objects[key] = img.Data
	return key, nil
}

func (f *fakeImageStore) Delete(_ context.Context, key string) error {
	delete(f.objects, key)
	return nil
}

func (f *fakeImageStore) URL(key string) string {
	return "http://media.test/" + key
}

func paginate[T any](items []T, opts repository.ListOptions) []T {
	if opts.Offset >= len(items) {
		return []T{}
	}
	items = items[opts.Offset:]
	if opts.Limit > 0 && opts.Limit < len(items) {
		items = items[:opts.Limit]
	}
	return items
}

// =========================================================================
// TEST HELPERS
// =========================================================================

// pngDataURI is a 1x1 transparent PNG.
const pngDataURI = "data:image/png;base64,iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mNkYPhfDwAChwGA60e6kgAAAABJRU5ErkJggg=="

// testEnv wires every service to one shared in-memory state.
type testEnv struct {
	db          *memDB
	images      *fakeImageStore
	users       *fakeUserRepo
	recipesRepo *fakeRecipeRepo
	links       *fakeShortLinkRepo

	recipes     *RecipeService
	ingredients *IngredientService
	accounts    *UserService
	auth        *AuthService
	shortLinks  *ShortLinkService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db := newMemDB()
	images := newFakeImageStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	users := &fakeUserRepo{db: db}
	ingredients := &fakeIngredientRepo{db: db}
	recipes := &fakeRecipeRepo{db: db}
	favorites := &fakeRelationRepo{db: db, set: db.favorites}
	cart := &fakeCartRepo{fakeRelationRepo{db: db, set: db.cart}}
	subs := &fakeSubscriptionRepo{db: db}
	links := &fakeShortLinkRepo{db: db}

	tokens, err := auth.NewTokenService("test-secret-at-least-16-chars!!", time.Hour)
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	// Cost 4 is the bcrypt minimum and keeps the tests fast.
	passwords := auth.NewPasswordServiceForTest(4)

	shortLinks, err := NewShortLinkService(links, recipes, 16, logger)
	if err != nil {
		t.Fatalf("NewShortLinkService: %v", err)
	}

	return &testEnv{
		db:          db,
		images:      images,
		users:       users,
		recipesRepo: recipes,
		links:       links,
		recipes:     NewRecipeService(recipes, ingredients, favorites, cart, images, logger),
		ingredients: NewIngredientService(ingredients, logger),
		accounts:    NewUserService(users, recipes, subs, passwords, images, logger),
		auth:        NewAuthService(users, tokens, passwords, logger),
		shortLinks:  shortLinks,
	}
}

// addUser registers a user with password "password123".
func (e *testEnv) addUser(t *testing.T, username string) *model.User {
	t.Helper()
	user, err := e.accounts.Register(context.Background(), RegisterInput{
		Email:     username + "@example.com",
		Username:  username,
		FirstName: "First",
		LastName:  "Last",
		Password:  "password123",
	})
	if err != nil {
		t.Fatalf("Register(%q) error = %v", username, err)
	}
	return user
}

func (e *testEnv) addIngredient(t *testing.T, name, unit string) int64 {
	t.Helper()
	ing := &model.Ingredient{Name: name, MeasurementUnit: unit}
	if _, err := (&fakeIngredientRepo{db: e.db}).CreateIfMissing(context.Background(), ing); err != nil {
		t.Fatalf("CreateIfMissing(%q) error = %v", name, err)
	}
	return ing.ID
}

func (e *testEnv) addRecipe(t *testing.T, authorID int64, name string, items ...model.IngredientAmount) *model.Recipe {
	t.Helper()
	recipe, err := e.recipes.Create(context.Background(), authorID, RecipeInput{
		Name:        name,
		Text:        "Mix and bake.",
		CookingTime: 30,
		Image:       pngDataURI,
		Ingredients: items,
	})
	if err != nil {
		t.Fatalf("Create(%q) error = %v", name, err)
	}
	return recipe
}

func amount(id int64, n int) model.IngredientAmount {
	return model.IngredientAmount{ID: id, Amount: n}
}
