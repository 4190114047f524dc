package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/lastwayz/ticketd/internal/domain"
)

const defaultAPIBase = "https://discord.com/api/v10"

// Discord "Unknown Channel" error code.
const apiCodeUnknownChannel = 10003

// permissionBits maps the named grants used by the lifecycle core to Discord
// permission flags.
var permissionBits = map[string]uint64{
	domain.PermViewChannel:        1 << 10,
	domain.PermSendMessages:       1 << 11,
	domain.PermManageMessages:     1 << 13,
	domain.PermEmbedLinks:         1 << 14,
	domain.PermAttachFiles:        1 << 15,
	domain.PermReadMessageHistory: 1 << 16,
}

const guildTextChannel = 0

// DiscordConfig holds what the REST client needs to reach one guild.
type DiscordConfig struct {
	BotToken string
	GuildID  string
	APIBase  string
	Timeout  time.Duration
}

// DiscordClient implements Client against the Discord REST API.
type DiscordClient struct {
	cfg    DiscordConfig
	http   *http.Client
	logger *zap.Logger
}

// NewDiscordClient builds a REST client for the configured guild.
func NewDiscordClient(cfg DiscordConfig, logger *zap.Logger) *DiscordClient {
	if cfg.APIBase == "" {
		cfg.APIBase = defaultAPIBase
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &DiscordClient{
		cfg:    cfg,
		http:   &http.Client{Timeout: timeout},
		logger: logger,
	}
}

type apiError struct {
	status int
	code   int
	body   string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("discord api: status %d code %d: %s", e.status, e.code, e.body)
}

func (c *DiscordClient) request(ctx context.Context, method, path string, payload any, out any) error {
	var bodyReader io.Reader
	if payload != nil {
		body, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		bodyReader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.APIBase+path, bodyReader)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bot "+c.cfg.BotToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if resp.StatusCode >= 400 {
		var apiBody struct {
			Code int `json:"code"`
		}
		_ = json.Unmarshal(respBody, &apiBody)
		if apiBody.Code == apiCodeUnknownChannel {
			return fmt.Errorf("%s %s: %w", method, path, ErrUnknownChannel)
		}
		return &apiError{status: resp.StatusCode, code: apiBody.Code, body: string(respBody)}
	}
	if out != nil {
		return json.Unmarshal(respBody, out)
	}
	return nil
}

type channelPayload struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type overwritePayload struct {
	ID    string `json:"id"`
	Type  int    `json:"type"`
	Allow string `json:"allow"`
	Deny  string `json:"deny"`
}

func bitsOf(names []string) string {
	var bits uint64
	for _, name := range names {
		bits |= permissionBits[name]
	}
	return strconv.FormatUint(bits, 10)
}

// Discord overwrite types: 0 role, 1 member.
func (c *DiscordClient) overwriteFor(o domain.PermissionOverwrite) overwritePayload {
	subjectType := 1
	if o.Role {
		subjectType = 0
	}
	return overwritePayload{
		ID:    o.SubjectID,
		Type:  subjectType,
		Allow: bitsOf(o.Allow),
		Deny:  bitsOf(o.Deny),
	}
}

// CreateChannel creates a guild text channel with the given permission overwrites.
func (c *DiscordClient) CreateChannel(ctx context.Context, name, parentID string, overwrites []domain.PermissionOverwrite) (ChannelRef, error) {
	body := map[string]any{
		"name": name,
		"type": guildTextChannel,
	}
	if parentID != "" {
		body["parent_id"] = parentID
	}
	payloads := make([]overwritePayload, 0, len(overwrites))
	for _, o := range overwrites {
		payloads = append(payloads, c.overwriteFor(o))
	}
	body["permission_overwrites"] = payloads

	var ch channelPayload
	if err := c.request(ctx, http.MethodPost, "/guilds/"+c.cfg.GuildID+"/channels", body, &ch); err != nil {
		return ChannelRef{}, err
	}
	return ChannelRef{ID: ch.ID, Name: ch.Name}, nil
}

// DeleteChannel deletes a channel; ErrUnknownChannel when already gone.
func (c *DiscordClient) DeleteChannel(ctx context.Context, channelID, reason string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.cfg.APIBase+"/channels/"+channelID, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bot "+c.cfg.BotToken)
	if reason != "" {
		req.Header.Set("X-Audit-Log-Reason", reason)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if resp.StatusCode >= 400 {
		var apiBody struct {
			Code int `json:"code"`
		}
		_ = json.Unmarshal(respBody, &apiBody)
		if apiBody.Code == apiCodeUnknownChannel {
			return fmt.Errorf("delete channel %s: %w", channelID, ErrUnknownChannel)
		}
		return &apiError{status: resp.StatusCode, code: apiBody.Code, body: string(respBody)}
	}
	return nil
}

// FetchChannel probes a channel; ErrUnknownChannel means it does not exist.
func (c *DiscordClient) FetchChannel(ctx context.Context, channelID string) (ChannelRef, error) {
	var ch channelPayload
	if err := c.request(ctx, http.MethodGet, "/channels/"+channelID, nil, &ch); err != nil {
		return ChannelRef{}, err
	}
	return ChannelRef{ID: ch.ID, Name: ch.Name}, nil
}

type messagePayload struct {
	ID     string `json:"id"`
	Author struct {
		Username      string `json:"username"`
		Discriminator string `json:"discriminator"`
	} `json:"author"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
	Embeds    []struct {
		Title string `json:"title"`
	} `json:"embeds"`
	Attachments []struct {
		Filename string `json:"filename"`
		URL      string `json:"url"`
	} `json:"attachments"`
}

// FetchRecentMessages returns up to limit recent messages, in whatever order
// the API hands them back.
func (c *DiscordClient) FetchRecentMessages(ctx context.Context, channelID string, limit int) ([]Message, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	var payloads []messagePayload
	path := fmt.Sprintf("/channels/%s/messages?limit=%d", channelID, limit)
	if err := c.request(ctx, http.MethodGet, path, nil, &payloads); err != nil {
		return nil, err
	}
	messages := make([]Message, 0, len(payloads))
	for _, p := range payloads {
		msg := Message{
			ID:        p.ID,
			AuthorTag: p.Author.Username,
			Content:   p.Content,
		}
		if p.Author.Discriminator != "" && p.Author.Discriminator != "0" {
			msg.AuthorTag = p.Author.Username + "#" + p.Author.Discriminator
		}
		if ts, err := time.Parse(time.RFC3339, p.Timestamp); err == nil {
			msg.CreatedAt = ts
		}
		for _, e := range p.Embeds {
			msg.EmbedTitles = append(msg.EmbedTitles, e.Title)
		}
		for _, a := range p.Attachments {
			msg.Attachments = append(msg.Attachments, Attachment{Name: a.Filename, URL: a.URL})
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

// FetchMemberRoles returns the guild role ids held by a member.
func (c *DiscordClient) FetchMemberRoles(ctx context.Context, userID string) ([]string, error) {
	var member struct {
		Roles []string `json:"roles"`
	}
	path := "/guilds/" + c.cfg.GuildID + "/members/" + userID
	if err := c.request(ctx, http.MethodGet, path, nil, &member); err != nil {
		return nil, err
	}
	return member.Roles, nil
}

// SendToChannel posts a plain message to a channel.
func (c *DiscordClient) SendToChannel(ctx context.Context, channelID, content string) error {
	if len(content) > 2000 {
		content = content[:1997] + "..."
	}
	return c.request(ctx, http.MethodPost, "/channels/"+channelID+"/messages", map[string]string{"content": content}, nil)
}

func (c *DiscordClient) openDM(ctx context.Context, userID string) (string, error) {
	var ch channelPayload
	err := c.request(ctx, http.MethodPost, "/users/@me/channels", map[string]string{"recipient_id": userID}, &ch)
	if err != nil {
		return "", err
	}
	return ch.ID, nil
}

// SendDirect delivers a DM. Fails when the recipient has DMs disabled.
func (c *DiscordClient) SendDirect(ctx context.Context, userID, content string) error {
	dmChannel, err := c.openDM(ctx, userID)
	if err != nil {
		return err
	}
	return c.SendToChannel(ctx, dmChannel, content)
}

// SendDirectFile delivers a DM carrying a file attachment, used for transcripts.
func (c *DiscordClient) SendDirectFile(ctx context.Context, userID, content, filename string, data []byte) error {
	dmChannel, err := c.openDM(ctx, userID)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	payload, err := json.Marshal(map[string]string{"content": content})
	if err != nil {
		return err
	}
	if err := writer.WriteField("payload_json", string(payload)); err != nil {
		return err
	}
	part, err := writer.CreateFormFile("files[0]", filename)
	if err != nil {
		return err
	}
	if _, err := part.Write(data); err != nil {
		return err
	}
	if err := writer.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.APIBase+"/channels/"+dmChannel+"/messages", &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bot "+c.cfg.BotToken)
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		return &apiError{status: resp.StatusCode, body: string(body)}
	}
	return nil
}

// SetPermissionOverwrite grants the named permissions to a member on a channel.
func (c *DiscordClient) SetPermissionOverwrite(ctx context.Context, channelID, subjectID string, allow []string) error {
	payload := c.overwriteFor(domain.PermissionOverwrite{SubjectID: subjectID, Allow: allow})
	path := "/channels/" + channelID + "/permissions/" + payload.ID
	return c.request(ctx, http.MethodPut, path, payload, nil)
}
