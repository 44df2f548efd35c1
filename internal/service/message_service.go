package service

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/agency-portal-api/internal/dto"
	"github.com/noah-isme/agency-portal-api/internal/models"
	appErrors "github.com/noah-isme/agency-portal-api/pkg/errors"
)

const previewLength = 120

type messageStore interface {
	Create(ctx context.Context, msg *models.Message) error
	FindForReader(ctx context.Context, id, readerID string) (*models.Message, error)
	ListDirect(ctx context.Context, userID string) ([]models.Message, error)
	ListForPrograms(ctx context.Context, userID string, programIDs []string) ([]models.Message, error)
	ListSent(ctx context.Context, userID string) ([]models.Message, error)
	MarkRead(ctx context.Context, messageID, userID string, at time.Time) error
}

type inboxProgramStore interface {
	FindByID(ctx context.Context, id string) (*models.Program, error)
	ListByParticipant(ctx context.Context, userID string) ([]models.Program, error)
	ListByCreator(ctx context.Context, userID string) ([]models.Program, error)
}

// MessageService composes the inbox and posts messages.
type MessageService struct {
	messages  messageStore
	programs  inboxProgramStore
	profiles  profileDirectory
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewMessageService constructs the service.
func NewMessageService(messages messageStore, programs inboxProgramStore, profiles profileDirectory, validate *validator.Validate, logger *zap.Logger) *MessageService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MessageService{
		messages:  messages,
		programs:  programs,
		profiles:  profiles,
		validator: validate,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Inbox merges direct messages, broadcasts of the programs the user takes part
// in, and what the user sent (programs created and messages authored). The
// three sources load concurrently and are filtered and sorted afterwards.
func (s *MessageService) Inbox(ctx context.Context, userID string, filter models.InboxFilter) ([]models.InboxItem, error) {
	sortKey, err := normaliseInboxSort(filter.Sort)
	if err != nil {
		return nil, err
	}
	switch filter.Kind {
	case "", models.InboxDirect, models.InboxProgram, models.InboxSent:
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "type must be direct, program or sent")
	}

	var direct, broadcast, sent []models.InboxItem
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		msgs, err := s.messages.ListDirect(gctx, userID)
		if err != nil {
			return appErrors.Persistence(err, "failed to load direct messages")
		}
		direct = messageItems(msgs, models.InboxDirect)
		return nil
	})
	g.Go(func() error {
		programs, err := s.programs.ListByParticipant(gctx, userID)
		if err != nil {
			return appErrors.Persistence(err, "failed to load programs")
		}
		ids := make([]string, 0, len(programs))
		for _, p := range programs {
			ids = append(ids, p.ID)
		}
		msgs, err := s.messages.ListForPrograms(gctx, userID, ids)
		if err != nil {
			return appErrors.Persistence(err, "failed to load program messages")
		}
		broadcast = messageItems(msgs, models.InboxProgram)
		return nil
	})
	g.Go(func() error {
		programs, err := s.programs.ListByCreator(gctx, userID)
		if err != nil {
			return appErrors.Persistence(err, "failed to load created programs")
		}
		msgs, err := s.messages.ListSent(gctx, userID)
		if err != nil {
			return appErrors.Persistence(err, "failed to load sent messages")
		}
		items := messageItems(msgs, models.InboxSent)
		for _, p := range programs {
			id := p.ID
			items = append(items, models.InboxItem{
				ID:        p.ID,
				Kind:      models.InboxSent,
				Title:     p.Name,
				Preview:   preview(p.Description),
				From:      p.CreatedBy,
				ProgramID: &id,
				Read:      true,
				CreatedAt: p.CreatedAt,
			})
		}
		sent = items
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	items := make([]models.InboxItem, 0, len(direct)+len(broadcast)+len(sent))
	items = append(items, direct...)
	items = append(items, broadcast...)
	items = append(items, sent...)
	s.resolveSenders(ctx, items)

	items = FilterInbox(items, filter)
	SortInbox(items, sortKey)
	return items, nil
}

// Send posts a direct message to one recipient or a broadcast to a program's
// participants. Exactly one target is required.
func (s *MessageService) Send(ctx context.Context, senderID string, role models.UserRole, req dto.SendMessageRequest) (*models.Message, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid message payload")
	}
	hasRecipient := req.RecipientID != nil && strings.TrimSpace(*req.RecipientID) != ""
	hasProgram := req.ProgramID != nil && strings.TrimSpace(*req.ProgramID) != ""
	if hasRecipient == hasProgram {
		return nil, appErrors.Clone(appErrors.ErrValidation, "exactly one of recipient_id or program_id is required")
	}

	msg := &models.Message{
		SenderID:  senderID,
		Subject:   strings.TrimSpace(req.Subject),
		Body:      req.Body,
		Link:      req.Link,
		CreatedAt: s.now(),
	}
	if hasRecipient {
		recipient := strings.TrimSpace(*req.RecipientID)
		if s.profiles != nil {
			found, err := s.profiles.FindProfiles(ctx, []string{recipient})
			if err != nil {
				return nil, appErrors.Persistence(err, "failed to load recipient")
			}
			if len(found) == 0 {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "recipient not found")
			}
		}
		msg.RecipientID = &recipient
	} else {
		if role == models.RoleLGU || role == models.RoleViewer {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "only administrators and evaluators may message a program")
		}
		programID := strings.TrimSpace(*req.ProgramID)
		if _, err := s.programs.FindByID(ctx, programID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "program not found")
			}
			return nil, appErrors.Persistence(err, "failed to load program")
		}
		msg.ProgramID = &programID
	}

	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, appErrors.Persistence(err, "failed to send message")
	}
	return msg, nil
}

// MarkRead records that userID has read the message.
func (s *MessageService) MarkRead(ctx context.Context, userID, messageID string) error {
	msg, err := s.messages.FindForReader(ctx, messageID, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "message not found")
		}
		return appErrors.Persistence(err, "failed to load message")
	}
	allowed, err := s.canRead(ctx, userID, msg)
	if err != nil {
		return err
	}
	if !allowed {
		return appErrors.Clone(appErrors.ErrNotFound, "message not found")
	}
	if msg.ReadAt != nil {
		return nil
	}
	if err := s.messages.MarkRead(ctx, messageID, userID, s.now()); err != nil {
		return appErrors.Persistence(err, "failed to mark message read")
	}
	return nil
}

func (s *MessageService) canRead(ctx context.Context, userID string, msg *models.Message) (bool, error) {
	if msg.SenderID == userID {
		return true, nil
	}
	if msg.RecipientID != nil {
		return *msg.RecipientID == userID, nil
	}
	if msg.ProgramID == nil {
		return false, nil
	}
	program, err := s.programs.FindByID(ctx, *msg.ProgramID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, appErrors.Persistence(err, "failed to load program")
	}
	return program.HasParticipant(userID), nil
}

func (s *MessageService) resolveSenders(ctx context.Context, items []models.InboxItem) {
	if s.profiles == nil || len(items) == 0 {
		return
	}
	seen := map[string]struct{}{}
	var ids []string
	for _, item := range items {
		if _, ok := seen[item.From]; !ok && item.From != "" {
			seen[item.From] = struct{}{}
			ids = append(ids, item.From)
		}
	}
	profiles, err := s.profiles.FindProfiles(ctx, ids)
	if err != nil {
		s.logger.Warn("failed to resolve message senders", zap.Error(err))
		return
	}
	names := make(map[string]string, len(profiles))
	for _, p := range profiles {
		names[p.ID] = p.FullName
	}
	for i := range items {
		if name, ok := names[items[i].From]; ok && name != "" {
			items[i].From = name
		}
	}
}

// FilterInbox keeps the items matching kind, unread state and a
// case-insensitive search over title, preview and sender.
func FilterInbox(items []models.InboxItem, filter models.InboxFilter) []models.InboxItem {
	needle := strings.ToLower(strings.TrimSpace(filter.Search))
	out := items[:0]
	for _, item := range items {
		if filter.Kind != "" && item.Kind != filter.Kind {
			continue
		}
		if filter.UnreadOnly && item.Read {
			continue
		}
		if needle != "" &&
			!strings.Contains(strings.ToLower(item.Title), needle) &&
			!strings.Contains(strings.ToLower(item.Preview), needle) &&
			!strings.Contains(strings.ToLower(item.From), needle) {
			continue
		}
		out = append(out, item)
	}
	return out
}

// SortInbox orders items by newest, oldest or name.
func SortInbox(items []models.InboxItem, key string) {
	sort.SliceStable(items, func(i, j int) bool {
		switch key {
		case "oldest":
			return items[i].CreatedAt.Before(items[j].CreatedAt)
		case "name":
			a, b := strings.ToLower(items[i].Title), strings.ToLower(items[j].Title)
			if a != b {
				return a < b
			}
			return items[i].CreatedAt.After(items[j].CreatedAt)
		default:
			return items[i].CreatedAt.After(items[j].CreatedAt)
		}
	})
}

func normaliseInboxSort(raw string) (string, error) {
	switch key := strings.ToLower(strings.TrimSpace(raw)); key {
	case "", "newest":
		return "newest", nil
	case "oldest", "name":
		return key, nil
	default:
		return "", appErrors.Clone(appErrors.ErrValidation, "sort must be newest, oldest or name")
	}
}

func messageItems(msgs []models.Message, kind models.InboxKind) []models.InboxItem {
	out := make([]models.InboxItem, 0, len(msgs))
	for _, m := range msgs {
		read := m.ReadAt != nil || kind == models.InboxSent
		out = append(out, models.InboxItem{
			ID:        m.ID,
			Kind:      kind,
			Title:     m.Subject,
			Preview:   preview(m.Body),
			From:      m.SenderID,
			ProgramID: m.ProgramID,
			Read:      read,
			CreatedAt: m.CreatedAt,
		})
	}
	return out
}

func preview(body string) string {
	body = strings.Join(strings.Fields(body), " ")
	if utf8.RuneCountInString(body) <= previewLength {
		return body
	}
	runes := []rune(body)
	return string(runes[:previewLength]) + "..."
}
