package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/dharsanguruparan/codegate/internal/codes"
	"github.com/dharsanguruparan/codegate/internal/delivery"
	"github.com/dharsanguruparan/codegate/internal/logger"
	"github.com/dharsanguruparan/codegate/internal/s3storage"
	"github.com/dharsanguruparan/codegate/internal/upload"
)

const (
	callbackEnterCode = "enter_code"
	listFilesLimit    = 20
)

func (s *Service) handleCommand(ctx context.Context, ev Event) {
	switch ev.Command {
	case "start":
		s.cmdStart(ctx, ev)
	case "help":
		s.cmdHelp(ctx, ev)
	case "upload":
		s.cmdUpload(ctx, ev)
	case "cancel":
		s.cmdCancel(ctx, ev)
	case "authorize", "grant":
		s.ownerOnly(ctx, ev, s.cmdAuthorize)
	case "revoke":
		s.ownerOnly(ctx, ev, s.cmdRevoke)
	case "list_files":
		s.ownerOnly(ctx, ev, s.cmdListFiles)
	case "broadcast":
		s.ownerOnly(ctx, ev, s.cmdBroadcast)
	case "check_users", "stats":
		s.ownerOnly(ctx, ev, s.cmdStats)
	case "backup":
		s.ownerOnly(ctx, ev, s.cmdBackup)
	default:
		s.reply(ctx, ev.ChatID, textUnknownCmd)
	}
}

// handleText routes plain text. Code-shaped text is a delivery request
// unless the sender is being asked for a description, where it is taken as
// one; other text feeds an upload in progress.
func (s *Service) handleText(ctx context.Context, ev Event) {
	text := strings.TrimSpace(ev.Text)
	state := s.sessions.State(ev.From.ID)
	if codes.Valid(text) && state != upload.AwaitingDescription {
		s.deliver(ctx, ev, text)
		return
	}
	if state != upload.NoSession {
		res := s.sessions.HandleText(ctx, ev.From.ID, ev.Text)
		s.replyUpload(ctx, ev.ChatID, res)
		return
	}
	s.reply(ctx, ev.ChatID, textNotACode)
}

func (s *Service) handleMedia(ctx context.Context, ev Event) {
	res, err := s.sessions.HandleMedia(ctx, ev.From.ID, upload.Media{Kind: ev.MediaKind, FileID: ev.FileID})
	if err != nil {
		logger.FromContext(ctx).Error("commit upload failed", slog.Any("error", err))
		s.reply(ctx, ev.ChatID, textSaveFailed)
		return
	}
	if res.Outcome == upload.OutcomeCommitted {
		s.metrics.Upload()
	}
	s.replyUpload(ctx, ev.ChatID, res)
}

func (s *Service) handleCallback(ctx context.Context, ev Event) {
	if ev.Data == callbackEnterCode {
		s.answer(ctx, ev.CallbackID, "")
		s.reply(ctx, ev.ChatID, textPromptCode)
		return
	}
	code, ok := s.signer.ParseJoinCallback(ev.Data, ev.From.ID)
	if !ok {
		logger.FromContext(ctx).Warn("rejected callback", slog.String("data", ev.Data))
		s.answer(ctx, ev.CallbackID, textButtonExpired)
		return
	}
	s.answer(ctx, ev.CallbackID, "")
	res := s.dispatcher.Recheck(ctx, ev.From.ID, ev.ChatID, code)
	if res.Outcome == delivery.NotMember {
		s.edit(ctx, ev, textNotJoinedYet)
		return
	}
	s.edit(ctx, ev, textJoinVerified)
	s.replyDelivery(ctx, ev, res)
}

func (s *Service) deliver(ctx context.Context, ev Event, code string) {
	res := s.dispatcher.Deliver(ctx, ev.From.ID, ev.ChatID, code)
	s.replyDelivery(ctx, ev, res)
}

func (s *Service) replyDelivery(ctx context.Context, ev Event, res delivery.Result) {
	switch res.Outcome {
	case delivery.NotMember:
		s.promptJoin(ctx, ev, res.Code)
	case delivery.InvalidCode:
		s.reply(ctx, ev.ChatID, textInvalidCode)
	case delivery.Failed:
		logger.FromContext(ctx).Error("delivery failed", slog.String("code", res.Code), slog.Any("error", res.Err))
		s.reply(ctx, ev.ChatID, textSendFailed)
	case delivery.Delivered:
	}
}

func (s *Service) promptJoin(ctx context.Context, ev Event, code string) {
	var rows [][]Button
	if s.joinURL != "" {
		rows = append(rows, []Button{{Text: buttonJoin, URL: s.joinURL}})
	}
	rows = append(rows, []Button{{Text: buttonJoined, Data: s.signer.JoinCallback(code, ev.From.ID)}})
	if _, err := s.transport.SendPrompt(ctx, ev.ChatID, textMustJoin, rows); err != nil {
		logger.FromContext(ctx).Warn("join prompt failed", slog.Any("error", err))
	}
}

func (s *Service) replyUpload(ctx context.Context, chatID int64, res upload.Result) {
	switch res.Outcome {
	case upload.OutcomeNoSession:
		s.reply(ctx, chatID, textUploadFirst)
	case upload.OutcomeUnauthorized:
		s.reply(ctx, chatID, textNotUploader)
	case upload.OutcomeStarted:
		s.reply(ctx, chatID, textAskDesc)
	case upload.OutcomeDescriptionAccepted:
		s.reply(ctx, chatID, textAskFile)
	case upload.OutcomeDescriptionTooLong:
		s.reply(ctx, chatID, textDescTooLong)
	case upload.OutcomeDescriptionEmpty:
		s.reply(ctx, chatID, textDescEmpty)
	case upload.OutcomeExpectedArtifact:
		s.reply(ctx, chatID, textWaitingFile)
	case upload.OutcomeExpectedDescription:
		s.reply(ctx, chatID, textDescFirst)
	case upload.OutcomeCommitted:
		s.reply(ctx, chatID, fmt.Sprintf(textUploaded, res.Code, res.Description))
	}
}

func (s *Service) answer(ctx context.Context, callbackID, text string) {
	if err := s.transport.AnswerCallback(ctx, callbackID, text); err != nil {
		logger.FromContext(ctx).Debug("answer callback failed", slog.Any("error", err))
	}
}

func (s *Service) edit(ctx context.Context, ev Event, text string) {
	if ev.MessageID == 0 {
		s.reply(ctx, ev.ChatID, text)
		return
	}
	if err := s.transport.EditText(ctx, ev.ChatID, ev.MessageID, text); err != nil {
		logger.FromContext(ctx).Debug("edit failed, replying instead", slog.Any("error", err))
		s.reply(ctx, ev.ChatID, text)
	}
}

// cmdStart greets the user. A deep link of the form /start <CODE> delivers
// right away.
func (s *Service) cmdStart(ctx context.Context, ev Event) {
	if arg := strings.TrimSpace(ev.Args); codes.Valid(arg) {
		s.deliver(ctx, ev, arg)
		return
	}
	rows := [][]Button{{{Text: buttonEnterCode, Data: callbackEnterCode}}}
	if s.joinURL != "" {
		rows = append([][]Button{{{Text: buttonJoin, URL: s.joinURL}}}, rows...)
	}
	if _, err := s.transport.SendPrompt(ctx, ev.ChatID, textWelcome, rows); err != nil {
		logger.FromContext(ctx).Warn("welcome failed", slog.Any("error", err))
	}
}

func (s *Service) cmdHelp(ctx context.Context, ev Event) {
	if s.registry.IsOwner(ev.From.ID) {
		s.reply(ctx, ev.ChatID, textOwnerHelp)
		return
	}
	ok, err := s.registry.IsAuthorized(ctx, ev.From.ID)
	if err == nil && ok {
		s.reply(ctx, ev.ChatID, textUploaderHelp)
		return
	}
	s.reply(ctx, ev.ChatID, textUserHelp)
}

func (s *Service) cmdUpload(ctx context.Context, ev Event) {
	res, err := s.sessions.Begin(ctx, ev.From.ID)
	if err != nil {
		logger.FromContext(ctx).Error("begin upload failed", slog.Any("error", err))
		s.reply(ctx, ev.ChatID, textGenericError)
		return
	}
	s.replyUpload(ctx, ev.ChatID, res)
}

func (s *Service) cmdCancel(ctx context.Context, ev Event) {
	if s.sessions.Cancel(ev.From.ID) {
		s.reply(ctx, ev.ChatID, textCancelled)
		return
	}
	s.reply(ctx, ev.ChatID, textNothingCancel)
}

func (s *Service) ownerOnly(ctx context.Context, ev Event, fn func(context.Context, Event)) {
	if !s.registry.IsOwner(ev.From.ID) {
		logger.FromContext(ctx).Info("owner command refused", slog.String("command", ev.Command))
		s.reply(ctx, ev.ChatID, textOwnerOnly)
		return
	}
	fn(ctx, ev)
}

func parseUserID(args string) (int64, bool) {
	fields := strings.Fields(args)
	if len(fields) == 0 {
		return 0, false
	}
	id, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func (s *Service) cmdAuthorize(ctx context.Context, ev Event) {
	id, ok := parseUserID(ev.Args)
	if !ok {
		s.reply(ctx, ev.ChatID, textUsageAuthorize)
		return
	}
	granted, err := s.registry.Grant(ctx, id, ev.From.ID)
	if err != nil {
		logger.FromContext(ctx).Error("grant failed", slog.Int64("target", id), slog.Any("error", err))
		s.reply(ctx, ev.ChatID, textGenericError)
		return
	}
	if !granted {
		s.reply(ctx, ev.ChatID, fmt.Sprintf(textAlreadyGranted, id))
		return
	}
	s.reply(ctx, ev.ChatID, fmt.Sprintf(textGranted, id))
}

func (s *Service) cmdRevoke(ctx context.Context, ev Event) {
	id, ok := parseUserID(ev.Args)
	if !ok {
		s.reply(ctx, ev.ChatID, textUsageRevoke)
		return
	}
	removed, err := s.registry.Revoke(ctx, id)
	if err != nil {
		logger.FromContext(ctx).Error("revoke failed", slog.Int64("target", id), slog.Any("error", err))
		s.reply(ctx, ev.ChatID, textGenericError)
		return
	}
	if !removed {
		s.reply(ctx, ev.ChatID, fmt.Sprintf(textNotGranted, id))
		return
	}
	s.reply(ctx, ev.ChatID, fmt.Sprintf(textRevoked, id))
}

func (s *Service) cmdListFiles(ctx context.Context, ev Event) {
	total, err := s.catalog.Count(ctx)
	if err != nil {
		logger.FromContext(ctx).Error("count files failed", slog.Any("error", err))
		s.reply(ctx, ev.ChatID, textGenericError)
		return
	}
	if total == 0 {
		s.reply(ctx, ev.ChatID, textNoFiles)
		return
	}
	recent, err := s.catalog.Recent(ctx, listFilesLimit)
	if err != nil {
		logger.FromContext(ctx).Error("list files failed", slog.Any("error", err))
		s.reply(ctx, ev.ChatID, textGenericError)
		return
	}
	var b strings.Builder
	fmt.Fprintf(&b, textFilesHeader, len(recent), total)
	for _, a := range recent {
		fmt.Fprintf(&b, "\n🔑 %s · %s · %s", a.Code, a.Kind, a.Description)
	}
	s.reply(ctx, ev.ChatID, b.String())
}

func (s *Service) cmdBroadcast(ctx context.Context, ev Event) {
	text := strings.TrimSpace(ev.Args)
	if text == "" {
		s.reply(ctx, ev.ChatID, textUsageBroadcast)
		return
	}
	statusID, err := s.transport.SendText(ctx, ev.ChatID, textBroadcasting)
	if err != nil {
		logger.FromContext(ctx).Warn("broadcast status failed", slog.Any("error", err))
	}
	res, err := s.broadcaster.Send(ctx, textBroadcastHead+text)
	if err != nil {
		logger.FromContext(ctx).Error("broadcast failed", slog.Any("error", err))
		if res.Recipients == 0 {
			s.reply(ctx, ev.ChatID, textGenericError)
			return
		}
	}
	s.edit(ctx, Event{ChatID: ev.ChatID, MessageID: statusID}, fmt.Sprintf(textBroadcastDone, res.Sent, res.Failed))
}

func (s *Service) cmdStats(ctx context.Context, ev Event) {
	users, err1 := s.users.Count(ctx)
	uploaders, err2 := s.registry.Count(ctx)
	files, err3 := s.catalog.Count(ctx)
	pending, err4 := s.obligations.CountPending(ctx)
	for _, err := range []error{err1, err2, err3, err4} {
		if err != nil {
			logger.FromContext(ctx).Error("stats failed", slog.Any("error", err))
			s.reply(ctx, ev.ChatID, textGenericError)
			return
		}
	}
	s.reply(ctx, ev.ChatID, fmt.Sprintf(textStats, users, uploaders, files, pending))
}

func (s *Service) cmdBackup(ctx context.Context, ev Event) {
	if s.backup == nil {
		s.reply(ctx, ev.ChatID, textNoBackup)
		return
	}
	log := logger.FromContext(ctx)
	artifacts, err := s.catalog.All(ctx)
	if err != nil {
		log.Error("backup read catalog failed", slog.Any("error", err))
		s.reply(ctx, ev.ChatID, textGenericError)
		return
	}
	uploaders, err := s.registry.List(ctx)
	if err != nil {
		log.Error("backup read grants failed", slog.Any("error", err))
		s.reply(ctx, ev.ChatID, textGenericError)
		return
	}
	users, err := s.users.Count(ctx)
	if err != nil {
		log.Error("backup count users failed", slog.Any("error", err))
		s.reply(ctx, ev.ChatID, textGenericError)
		return
	}
	key, err := s.backup.UploadSnapshot(ctx, s3storage.Snapshot{Artifacts: artifacts, Uploaders: uploaders, Users: users})
	if err != nil {
		log.Error("backup upload failed", slog.Any("error", err))
		s.reply(ctx, ev.ChatID, textGenericError)
		return
	}
	link, err := s.backup.PresignURL(ctx, key, s3storage.DefaultLinkExpiry)
	if err != nil {
		log.Warn("backup presign failed", slog.Any("error", err))
	}
	log.Info("backup stored", slog.String("key", key), slog.Int("files", len(artifacts)))
	s.reply(ctx, ev.ChatID, fmt.Sprintf(textBackupDone, key, len(artifacts), link))
}
