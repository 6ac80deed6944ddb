package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"marketplace/internal/models"
	"marketplace/internal/observability"
	"marketplace/internal/repository"
	"marketplace/internal/scoring"

	"go.opentelemetry.io/otel/attribute"
)

const maxCommentLen = 10000

// EngagementNotifier tells a post or comment owner about an engagement.
type EngagementNotifier interface {
	NotifyEngagement(ctx context.Context, notice EngagementNotice) error
}

// Engagement is one user action on a content item or a comment.
type Engagement struct {
	ActorID  uint
	PostID   uint
	PostType models.PostType
	Kind     models.EngagementKind
	Text     string
}

type ReactInput struct {
	ActorID  uint
	PostID   uint
	PostType models.PostType
	Type     models.LikeType
}

// ReactionResult is the actor's reaction on the target after a toggle.
type ReactionResult struct {
	PostID   uint            `json:"post_id"`
	PostType models.PostType `json:"post_type"`
	Type     models.LikeType `json:"type,omitempty"`
	Active   bool            `json:"active"`
}

type CommentInput struct {
	ActorID  uint
	PostID   uint
	PostType models.PostType
	Text     string
}

type FavoriteInput struct {
	ActorID  uint
	PostID   uint
	PostType models.PostType
}

// targetRef is what the dispatcher needs to know about an engagement target.
type targetRef struct {
	OwnerID uint
	URL     string
}

// engagementTarget routes counter mutations to the one store owning a post type.
type engagementTarget interface {
	// resolve returns nil when the id does not exist in this store.
	resolve(ctx context.Context, id uint) (*targetRef, error)
	adjust(ctx context.Context, id uint, counter models.Counter, delta int) error
}

type contentTarget struct {
	store repository.ContentRepository
}

func (t contentTarget) resolve(ctx context.Context, id uint) (*targetRef, error) {
	item, err := t.store.Find(ctx, id)
	if err != nil || item == nil {
		return nil, err
	}
	return &targetRef{OwnerID: item.UserID, URL: item.URL}, nil
}

func (t contentTarget) adjust(ctx context.Context, id uint, counter models.Counter, delta int) error {
	_, err := t.store.AdjustCounter(ctx, id, counter, delta)
	return err
}

type commentTarget struct {
	comments repository.CommentRepository
	stores   repository.ContentStores
}

// resolve points comment notifications at the parent post's url.
func (t commentTarget) resolve(ctx context.Context, id uint) (*targetRef, error) {
	c, err := t.comments.Find(ctx, id)
	if err != nil || c == nil {
		return nil, err
	}
	ref := &targetRef{OwnerID: c.UserID}
	if store, storeErr := t.stores.For(c.PostType); storeErr == nil {
		parent, findErr := store.Find(ctx, c.PostID)
		if findErr != nil {
			return nil, findErr
		}
		if parent != nil {
			ref.URL = parent.URL
		}
	}
	return ref, nil
}

func (t commentTarget) adjust(ctx context.Context, id uint, counter models.Counter, delta int) error {
	_, err := t.comments.AdjustCounter(ctx, id, counter, delta)
	return err
}

// newEngagementTargets builds the dispatch table and fails unless every
// reactable type is routed to exactly one store of that type.
func newEngagementTargets(stores repository.ContentStores, comments repository.CommentRepository) (map[models.PostType]engagementTarget, error) {
	targets := make(map[models.PostType]engagementTarget, len(models.ReactableTypes))
	for _, p := range models.ContentTypes {
		store, ok := stores[p]
		if !ok || store == nil {
			return nil, fmt.Errorf("no content store registered for %s", p)
		}
		if store.PostType() != p {
			return nil, fmt.Errorf("store for %s serves %s", p, store.PostType())
		}
		targets[p] = contentTarget{store: store}
	}
	if comments == nil {
		return nil, fmt.Errorf("no comment store registered")
	}
	targets[models.PostTypeComment] = commentTarget{comments: comments, stores: stores}

	for _, p := range models.ReactableTypes {
		if _, ok := targets[p]; !ok {
			return nil, fmt.Errorf("post type %s has no engagement target", p)
		}
	}
	return targets, nil
}

// EngagementDispatcher applies likes, dislikes, comments and favorites: the actor's
// back-reference set, the target counter and score, then the owner notification.
type EngagementDispatcher struct {
	targets   map[models.PostType]engagementTarget
	stores    repository.ContentStores
	comments  repository.CommentRepository
	likes     repository.LikeRepository
	favorites repository.FavoriteRepository
	users     repository.UserRepository
	notifier  EngagementNotifier
	scorer    userScorer
	now       func() time.Time
}

func NewEngagementDispatcher(
	stores repository.ContentStores,
	comments repository.CommentRepository,
	likes repository.LikeRepository,
	favorites repository.FavoriteRepository,
	users repository.UserRepository,
	notifier EngagementNotifier,
) (*EngagementDispatcher, error) {
	targets, err := newEngagementTargets(stores, comments)
	if err != nil {
		return nil, err
	}
	return &EngagementDispatcher{
		targets:   targets,
		stores:    stores,
		comments:  comments,
		likes:     likes,
		favorites: favorites,
		users:     users,
		notifier:  notifier,
		scorer:    userScorer{users: users, now: time.Now},
		now:       time.Now,
	}, nil
}

// skipped builds a best-effort skip. It answers as not found at the transport layer.
func skipped(format string, args ...interface{}) error {
	return &models.AppError{
		Code:    models.CodeNotFound,
		Message: fmt.Sprintf(format, args...),
		Err:     models.ErrBestEffortSkip,
	}
}

func observe(kind models.EngagementKind, err error) {
	result := "applied"
	switch {
	case isSkip(err):
		result = "skipped"
	case err != nil:
		result = "failed"
	}
	observability.EngagementEvents.WithLabelValues(string(kind), result).Inc()
}

// DispatchEngagement applies one engagement event. A missing actor or target drops
// the event with a warning and no error.
func (d *EngagementDispatcher) DispatchEngagement(ctx context.Context, e Engagement) (err error) {
	ctx, span := observability.StartSpan(ctx, "engagement.Dispatch",
		attribute.String("kind", string(e.Kind)),
		attribute.String("post_type", string(e.PostType)),
		attribute.Int64("post_id", int64(e.PostID)),
	)
	defer func() { observability.EndSpan(span, err) }()

	switch e.Kind {
	case models.EngagementLike, models.EngagementDislike:
		likeType, _ := e.Kind.LikeType()
		_, err = d.React(ctx, ReactInput{ActorID: e.ActorID, PostID: e.PostID, PostType: e.PostType, Type: likeType})
	case models.EngagementComment:
		_, err = d.AddComment(ctx, CommentInput{ActorID: e.ActorID, PostID: e.PostID, PostType: e.PostType, Text: e.Text})
	case models.EngagementFavorite:
		err = d.AddFavorite(ctx, FavoriteInput{ActorID: e.ActorID, PostID: e.PostID, PostType: e.PostType})
	default:
		err = models.NewValidationError(fmt.Sprintf("Unknown engagement kind %q", e.Kind))
		return err
	}

	if isSkip(err) {
		observability.GlobalLogger.WarnContext(ctx, "engagement dropped",
			slog.String("kind", string(e.Kind)),
			slog.Uint64("user_id", uint64(e.ActorID)),
			slog.Uint64("post_id", uint64(e.PostID)),
			slog.String("post_type", string(e.PostType)),
			observability.ErrAttr(err))
		err = nil
	}
	return err
}

func (d *EngagementDispatcher) loadActor(ctx context.Context, id uint) (*models.User, error) {
	actor, err := d.users.GetByID(ctx, id)
	if models.HasCode(err, models.CodeNotFound) {
		return nil, skipped("User %d not found", id)
	}
	return actor, err
}

// React applies the toggle rule: a first reaction is recorded, the same reaction again
// removes it and the opposite reaction replaces it.
func (d *EngagementDispatcher) React(ctx context.Context, in ReactInput) (res ReactionResult, err error) {
	kind := models.EngagementLike
	if in.Type == models.LikeTypeDislike {
		kind = models.EngagementDislike
	}
	defer func() { observe(kind, err) }()

	res = ReactionResult{PostID: in.PostID, PostType: in.PostType}
	target, ok := d.targets[in.PostType]
	if !ok {
		return res, models.NewValidationError(fmt.Sprintf("%s cannot be liked", in.PostType))
	}
	if in.Type != models.LikeTypeLike && in.Type != models.LikeTypeDislike {
		return res, models.NewValidationError(fmt.Sprintf("Invalid like type %q", in.Type))
	}

	actor, err := d.loadActor(ctx, in.ActorID)
	if err != nil {
		return res, err
	}
	ref, err := target.resolve(ctx, in.PostID)
	if err != nil {
		return res, err
	}
	if ref == nil {
		return res, skipped("%s %d not found", in.PostType, in.PostID)
	}

	existing, err := d.likes.Find(ctx, actor.ID, in.PostID, in.PostType)
	if err != nil {
		return res, err
	}

	added, err := d.applyReaction(ctx, target, actor.ID, in, existing)
	if err != nil {
		return res, err
	}
	if existing == nil || existing.Type != in.Type {
		res.Type, res.Active = in.Type, true
	}

	d.refreshScore(ctx, actor.ID)
	if in.PostType == models.PostTypeComment && ref.OwnerID != actor.ID {
		d.refreshScore(ctx, ref.OwnerID)
	}
	if added {
		d.notify(ctx, EngagementNotice{
			Actor:      actor,
			OwnerID:    ref.OwnerID,
			Kind:       kind,
			TargetType: in.PostType,
			URL:        ref.URL,
		})
	}
	return res, nil
}

// applyReaction writes the like row first and the counters second. When a counter
// update fails the row change is undone so the next submission is not taken as a
// toggle of a reaction that was never counted.
func (d *EngagementDispatcher) applyReaction(ctx context.Context, target engagementTarget, actorID uint, in ReactInput, existing *models.Like) (bool, error) {
	switch {
	case existing == nil:
		like := &models.Like{UserID: actorID, PostID: in.PostID, PostType: in.PostType, Type: in.Type}
		created, err := d.likes.Create(ctx, like)
		if err != nil || !created {
			return false, err
		}
		if err := target.adjust(ctx, in.PostID, in.Type.Counter(), 1); err != nil {
			d.undo(ctx, "like create", func() error {
				_, undoErr := d.likes.Delete(ctx, like.ID)
				return undoErr
			})
			return false, err
		}
		return true, d.users.AddRef(ctx, actorID, models.ReactionRefKind(in.Type), in.PostID, in.PostType)

	case existing.Type == in.Type:
		deleted, err := d.likes.Delete(ctx, existing.ID)
		if err != nil || !deleted {
			return false, err
		}
		if err := target.adjust(ctx, in.PostID, in.Type.Counter(), -1); err != nil {
			d.undo(ctx, "like delete", func() error {
				restored := *existing
				_, undoErr := d.likes.Create(ctx, &restored)
				return undoErr
			})
			return false, err
		}
		return false, d.users.RemoveRef(ctx, actorID, models.ReactionRefKind(in.Type), in.PostID, in.PostType)

	default:
		switched, err := d.likes.SwitchType(ctx, existing.ID, existing.Type, in.Type)
		if err != nil || !switched {
			return false, err
		}
		switchBack := func() error {
			_, undoErr := d.likes.SwitchType(ctx, existing.ID, in.Type, existing.Type)
			return undoErr
		}
		if err := target.adjust(ctx, in.PostID, existing.Type.Counter(), -1); err != nil {
			d.undo(ctx, "like switch", switchBack)
			return false, err
		}
		if err := target.adjust(ctx, in.PostID, in.Type.Counter(), 1); err != nil {
			d.undo(ctx, "like switch", func() error {
				if undoErr := target.adjust(ctx, in.PostID, existing.Type.Counter(), 1); undoErr != nil {
					return undoErr
				}
				return switchBack()
			})
			return false, err
		}
		if err := d.users.RemoveRef(ctx, actorID, models.ReactionRefKind(existing.Type), in.PostID, in.PostType); err != nil {
			return false, err
		}
		return true, d.users.AddRef(ctx, actorID, models.ReactionRefKind(in.Type), in.PostID, in.PostType)
	}
}

// undo runs a compensating write after a failed counter update.
func (d *EngagementDispatcher) undo(ctx context.Context, step string, fn func() error) {
	if err := fn(); err != nil {
		observability.GlobalLogger.ErrorContext(ctx, "failed to undo engagement write",
			slog.String("step", step),
			observability.ErrAttr(err))
	}
}

// AddComment creates a comment under a content item.
func (d *EngagementDispatcher) AddComment(ctx context.Context, in CommentInput) (c *models.Comment, err error) {
	defer func() { observe(models.EngagementComment, err) }()

	text := strings.TrimSpace(in.Text)
	if text == "" {
		return nil, models.NewValidationError("Comment text is required")
	}
	if len(text) > maxCommentLen {
		return nil, models.NewValidationError(fmt.Sprintf("Comment too long (max %d characters)", maxCommentLen))
	}
	store, err := d.stores.For(in.PostType)
	if err != nil {
		return nil, err
	}

	actor, err := d.loadActor(ctx, in.ActorID)
	if err != nil {
		return nil, err
	}
	item, err := store.Find(ctx, in.PostID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, skipped("%s %d not found", in.PostType, in.PostID)
	}

	now := d.now()
	c = &models.Comment{
		UserID:    actor.ID,
		PostID:    item.ID,
		PostType:  in.PostType,
		Text:      text,
		IsTrusted: actor.IsTrusted,
		CreatedAt: now,
	}
	c.Score = scoring.ContentScore(c.ScoreInputs(), now)
	if err := d.comments.Create(ctx, c); err != nil {
		return nil, err
	}
	if err := store.IncrementComments(ctx, item.ID); err != nil {
		d.undo(ctx, "comment create", func() error { return d.comments.Delete(ctx, c.ID) })
		return nil, err
	}
	if err := d.users.AddRef(ctx, actor.ID, models.RefComments, c.ID, models.PostTypeComment); err != nil {
		return nil, err
	}

	d.refreshScore(ctx, actor.ID)
	d.notify(ctx, EngagementNotice{
		Actor:      actor,
		OwnerID:    item.UserID,
		Kind:       models.EngagementComment,
		TargetType: in.PostType,
		URL:        item.URL,
	})
	return c, nil
}

// RemoveComment deletes the actor's own comment and releases its counter.
func (d *EngagementDispatcher) RemoveComment(ctx context.Context, actorID, commentID uint) error {
	c, err := d.comments.GetByID(ctx, commentID)
	if err != nil {
		return err
	}
	if c.UserID != actorID {
		return models.NewForbiddenError("You can only delete your own comments")
	}
	if err := d.comments.Delete(ctx, c.ID); err != nil {
		return err
	}
	if store, storeErr := d.stores.For(c.PostType); storeErr == nil {
		if err := store.DecrementComments(ctx, c.PostID); err != nil {
			return err
		}
	}
	if err := d.users.RemoveRef(ctx, actorID, models.RefComments, c.ID, models.PostTypeComment); err != nil {
		return err
	}
	d.refreshScore(ctx, actorID)
	return nil
}

// Comments lists the comments of a content item, newest first.
func (d *EngagementDispatcher) Comments(ctx context.Context, postType models.PostType, postID uint, page, limit int) (models.Page[*models.Comment], error) {
	page, limit = normalizePage(page, limit, defaultPageLimit, maxPageLimit)
	out := models.Page[*models.Comment]{Page: page, Limit: limit}
	if !postType.IsContent() {
		return out, models.NewValidationError(fmt.Sprintf("%s has no comments", postType))
	}
	comments, total, err := d.comments.ListByPost(ctx, postID, postType, (page-1)*limit, limit)
	if err != nil {
		return out, err
	}
	out.Results = comments
	out.TotalResults = total
	out.TotalPages = models.TotalPagesFor(total, limit)
	return out, nil
}

// AddFavorite bookmarks a content item.
func (d *EngagementDispatcher) AddFavorite(ctx context.Context, in FavoriteInput) (err error) {
	defer func() { observe(models.EngagementFavorite, err) }()

	store, err := d.stores.For(in.PostType)
	if err != nil {
		return err
	}
	actor, err := d.loadActor(ctx, in.ActorID)
	if err != nil {
		return err
	}
	item, err := store.Find(ctx, in.PostID)
	if err != nil {
		return err
	}
	if item == nil {
		return skipped("%s %d not found", in.PostType, in.PostID)
	}

	if err := d.favorites.Create(ctx, &models.Favorite{UserID: actor.ID, PostID: item.ID, PostType: in.PostType}); err != nil {
		return err
	}
	return d.users.AddRef(ctx, actor.ID, models.RefFavorites, item.ID, in.PostType)
}

// RemoveFavorite drops a bookmark. A missing bookmark is NotFound.
func (d *EngagementDispatcher) RemoveFavorite(ctx context.Context, in FavoriteInput) error {
	if !in.PostType.IsContent() {
		return models.NewValidationError(fmt.Sprintf("%s cannot be favorited", in.PostType))
	}
	if err := d.favorites.Delete(ctx, in.ActorID, in.PostID, in.PostType); err != nil {
		return err
	}
	return d.users.RemoveRef(ctx, in.ActorID, models.RefFavorites, in.PostID, in.PostType)
}

func (d *EngagementDispatcher) refreshScore(ctx context.Context, userID uint) {
	if err := d.scorer.refresh(ctx, userID); err != nil {
		observability.GlobalLogger.WarnContext(ctx, "failed to refresh user score",
			slog.Uint64("user_id", uint64(userID)),
			observability.ErrAttr(err))
	}
}

// notify never fails the engagement; delivery problems are logged.
func (d *EngagementDispatcher) notify(ctx context.Context, notice EngagementNotice) {
	if d.notifier == nil {
		return
	}
	err := d.notifier.NotifyEngagement(ctx, notice)
	switch {
	case err == nil:
	case isSkip(err):
		observability.GlobalLogger.WarnContext(ctx, "engagement notification skipped",
			slog.Uint64("user_id", uint64(notice.OwnerID)),
			observability.ErrAttr(err))
	default:
		observability.GlobalLogger.ErrorContext(ctx, "engagement notification failed",
			slog.Uint64("user_id", uint64(notice.OwnerID)),
			observability.ErrAttr(err))
	}
}
