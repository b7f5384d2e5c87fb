package telegram

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/rs/zerolog"

	"studio/internal/domain"
	"studio/internal/events"
	"studio/internal/pipeline"
	"studio/internal/storage"
)

// Bot is the chat front end: it long-polls Telegram, turns plain messages
// into pipeline jobs and streams progress back into the chat.
type Bot struct {
	client     *Client
	pipeline   *pipeline.Orchestrator
	store      domain.JobStore
	supervisor *pipeline.Supervisor
	bus        *events.Bus
	files      *storage.FileStore
	sessions   *SessionStore
	logger     zerolog.Logger

	// allowed is an optional user allow-list; empty means open access.
	allowed map[int64]bool

	pollTimeout int
}

// BotOptions wires the bot's dependencies.
type BotOptions struct {
	Client       *Client
	Pipeline     *pipeline.Orchestrator
	Store        domain.JobStore
	Supervisor   *pipeline.Supervisor
	Bus          *events.Bus
	Files        *storage.FileStore
	Sessions     *SessionStore
	Logger       zerolog.Logger
	AllowedUsers []int64
}

// NewBot constructs the bot.
func NewBot(opts BotOptions) *Bot {
	allowed := make(map[int64]bool, len(opts.AllowedUsers))
	for _, id := range opts.AllowedUsers {
		allowed[id] = true
	}
	return &Bot{
		client:      opts.Client,
		pipeline:    opts.Pipeline,
		store:       opts.Store,
		supervisor:  opts.Supervisor,
		bus:         opts.Bus,
		files:       opts.Files,
		sessions:    opts.Sessions,
		logger:      opts.Logger,
		allowed:     allowed,
		pollTimeout: 50,
	}
}

// Run long-polls for updates until ctx is cancelled. Poll errors are logged
// and retried; the loop only exits on cancellation.
func (b *Bot) Run(ctx context.Context) error {
	var offset int64
	b.logger.Info().Msg("telegram: bot polling started")
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		updates, err := b.client.GetUpdates(ctx, offset, b.pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			b.logger.Warn().Err(err).Msg("telegram: poll failed, retrying")
			continue
		}
		for _, update := range updates {
			if update.UpdateID >= offset {
				offset = update.UpdateID + 1
			}
			b.handleUpdate(ctx, update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update Update) {
	msg := update.Message
	if msg == nil || msg.From == nil {
		return
	}
	if len(b.allowed) > 0 && !b.allowed[msg.From.ID] {
		b.reply(ctx, msg.Chat.ID, "Sorry, this bot is private.")
		return
	}

	switch {
	case len(msg.Photo) > 0:
		b.handlePhoto(ctx, msg)
	case strings.HasPrefix(msg.Text, "/"):
		b.handleCommand(ctx, msg)
	case strings.TrimSpace(msg.Text) != "":
		b.handlePrompt(ctx, msg, msg.Text)
	}
}

func (b *Bot) handleCommand(ctx context.Context, msg *Message) {
	parts := strings.Fields(msg.Text)
	command := strings.SplitN(parts[0], "@", 2)[0]
	args := parts[1:]

	switch command {
	case "/start":
		b.reply(ctx, msg.Chat.ID, "Hi! Send me a description and I'll generate six image variants for it.\n"+
			"Attach photos first to use them as style references.\n"+
			"Commands: /settings, /aspect, /status, /cancel, /help")
	case "/help":
		b.reply(ctx, msg.Chat.ID, "Send any text to start a generation job.\n"+
			"/settings - show your current render settings\n"+
			"/aspect <ratio> - set aspect ratio, e.g. /aspect 16:9\n"+
			"/status - show your latest job\n"+
			"/cancel - forget your active job and staged photos")
	case "/settings":
		sess := b.sessions.Get(msg.From.ID, msg.Chat.ID)
		b.reply(ctx, msg.Chat.ID, fmt.Sprintf("Aspect ratio: %s\nResolution: %s\nStaged references: %d",
			sess.AspectRatio, sess.Resolution, len(sess.References)))
	case "/aspect":
		if len(args) == 0 {
			b.reply(ctx, msg.Chat.ID, "Usage: /aspect 16:9")
			return
		}
		b.sessions.Update(msg.From.ID, msg.Chat.ID, func(s *Session) {
			s.AspectRatio = args[0]
		})
		b.reply(ctx, msg.Chat.ID, "Aspect ratio set to "+args[0])
	case "/status":
		b.handleStatus(ctx, msg)
	case "/cancel":
		// Clears the active-job marker and staged references. The pipeline
		// itself keeps running to completion; this only detaches the chat.
		b.sessions.Update(msg.From.ID, msg.Chat.ID, func(s *Session) {
			s.References = nil
			s.LastJobID = ""
		})
		b.reply(ctx, msg.Chat.ID, "Cleared your active job and staged references.")
	default:
		b.reply(ctx, msg.Chat.ID, "Unknown command. Try /help.")
	}
}

func (b *Bot) handleStatus(ctx context.Context, msg *Message) {
	sess := b.sessions.Get(msg.From.ID, msg.Chat.ID)
	if sess.LastJobID == "" {
		b.reply(ctx, msg.Chat.ID, "No jobs yet. Send a description to start one.")
		return
	}
	job, err := b.store.Get(ctx, sess.LastJobID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			b.reply(ctx, msg.Chat.ID, "Your last job is no longer available.")
			return
		}
		b.reply(ctx, msg.Chat.ID, "Could not look up your job, try again.")
		return
	}
	status := fmt.Sprintf("Job %s\nStage: %s\nImages: %d", job.ID, job.Stage, len(job.SuccessfulImages()))
	if job.Error != "" {
		status += "\nError: " + job.Error
	}
	b.reply(ctx, msg.Chat.ID, status)
}

// handlePhoto downloads the largest resolution of an uploaded photo and
// stages it as a reference for the user's next job.
func (b *Bot) handlePhoto(ctx context.Context, msg *Message) {
	best := msg.Photo[0]
	for _, p := range msg.Photo {
		if p.Width*p.Height > best.Width*best.Height {
			best = p
		}
	}
	filePath, err := b.client.GetFile(ctx, best.FileID)
	if err != nil {
		b.logger.Warn().Err(err).Msg("telegram: getFile failed")
		b.reply(ctx, msg.Chat.ID, "Could not fetch that photo, try again.")
		return
	}
	data, err := b.client.DownloadFile(ctx, filePath)
	if err != nil {
		b.logger.Warn().Err(err).Msg("telegram: photo download failed")
		b.reply(ctx, msg.Chat.ID, "Could not download that photo, try again.")
		return
	}
	key := fmt.Sprintf("references/%d/%s", msg.From.ID, path.Base(filePath))
	stored, err := b.files.Write(ctx, key, data)
	if err != nil {
		b.logger.Warn().Err(err).Msg("telegram: reference store failed")
		b.reply(ctx, msg.Chat.ID, "Could not store that photo, try again.")
		return
	}
	var count int
	b.sessions.Update(msg.From.ID, msg.Chat.ID, func(s *Session) {
		s.References = append(s.References, stored)
		count = len(s.References)
	})
	reply := fmt.Sprintf("Reference saved (%d staged).", count)
	if caption := strings.TrimSpace(msg.Caption); caption != "" {
		b.reply(ctx, msg.Chat.ID, reply)
		b.handlePrompt(ctx, msg, caption)
		return
	}
	b.reply(ctx, msg.Chat.ID, reply+" Send a description when ready.")
}

// handlePrompt turns free text into a pipeline job and mirrors its progress
// into the chat.
func (b *Bot) handlePrompt(ctx context.Context, msg *Message, prompt string) {
	sess := b.sessions.Get(msg.From.ID, msg.Chat.ID)

	var refs []string
	b.sessions.Update(msg.From.ID, msg.Chat.ID, func(s *Session) {
		refs = s.References
		s.References = nil
	})

	job, err := b.pipeline.Create(ctx, domain.Request{
		Prompt:         prompt,
		ReferencePaths: refs,
		AspectRatio:    sess.AspectRatio,
		Resolution:     sess.Resolution,
		ChatID:         msg.Chat.ID,
	})
	if err != nil {
		b.reply(ctx, msg.Chat.ID, "Could not start the job: "+err.Error())
		return
	}
	b.sessions.Update(msg.From.ID, msg.Chat.ID, func(s *Session) {
		s.LastJobID = job.ID
	})

	jobID := job.ID
	chatID := msg.Chat.ID
	runCtx := context.WithoutCancel(ctx)
	tracker := TrackProgress(runCtx, b.client, b.bus, b.logger, jobID, chatID)
	b.supervisor.Go(runCtx, "pipeline-"+jobID, func(ctx context.Context) {
		finished, err := b.pipeline.Run(ctx, jobID)
		if err != nil {
			// Infrastructure error, so no terminal event will arrive for the
			// tracker. Detach it instead of leaving it subscribed forever.
			tracker.Stop()
			b.logger.Error().Err(err).Str("job_id", jobID).Msg("telegram: pipeline run failed")
			b.reply(ctx, chatID, "Something went wrong running your job, please try again.")
			return
		}
		if finished.Stage == domain.StageComplete {
			b.deliverResults(ctx, chatID, finished)
		}
	})
}

// deliverResults sends each rendered image back to the chat, winner first.
func (b *Bot) deliverResults(ctx context.Context, chatID int64, job *domain.Job) {
	winner := domain.Variant("")
	summary := ""
	if job.Evaluation != nil {
		winner = job.Evaluation.Winner
		summary = job.Evaluation.Summary
	}

	images := job.SuccessfulImages()
	ordered := make([]domain.GeneratedImage, 0, len(images))
	for _, img := range images {
		if img.Variant == winner {
			ordered = append([]domain.GeneratedImage{img}, ordered...)
		} else {
			ordered = append(ordered, img)
		}
	}

	for _, img := range ordered {
		data, err := b.files.Read(ctx, img.FilePath)
		if err != nil {
			b.logger.Warn().Err(err).Str("job_id", job.ID).Str("variant", string(img.Variant)).Msg("telegram: result read failed")
			continue
		}
		caption := string(img.Variant)
		if p, ok := job.Prompt(img.Variant); ok && p.Label != "" {
			caption = p.Label
		}
		if img.Variant == winner {
			caption = "🏆 " + caption
		}
		if err := b.client.SendPhoto(ctx, chatID, caption, path.Base(img.FilePath), data); err != nil {
			b.logger.Warn().Err(err).Str("job_id", job.ID).Msg("telegram: photo send failed")
		}
	}
	if summary != "" {
		b.reply(ctx, chatID, summary)
	}
}

func (b *Bot) reply(ctx context.Context, chatID int64, text string) {
	if _, err := b.client.SendMessage(ctx, chatID, text); err != nil {
		b.logger.Warn().Err(err).Msg("telegram: reply failed")
	}
}
