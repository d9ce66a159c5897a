// Package collectortest provides an in-memory chat platform for tests.
package collectortest

import (
	"context"
	"strconv"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/craftlink/craftlink/internal/collector"
)

// Message is a message posted through the fake
type Message struct {
	ChannelID string
	Embed     *discordgo.MessageEmbed
	Edits     int
}

// Text is a plain message posted through the fake
type Text struct {
	ChannelID string
	Content   string
}

// Emoji is a guild emoji created through the fake
type Emoji struct {
	GuildID string
	Name    string
	PNG     []byte
}

// Platform records everything sent to the chat service. Messages and
// emoji live in maps keyed by their generated ID; deleting removes them.
type Platform struct {
	mu       sync.Mutex
	nextID   int
	Messages map[string]*Message
	Emojis   map[string]Emoji
	Texts    []Text
	Deleted  []string
	Activity string
	Names    map[string]string

	// EditErr, when set, is returned by every EditEmbed call
	EditErr error
}

// NewPlatform constructs an empty Platform fake
func NewPlatform() *Platform {
	return &Platform{
		Messages: make(map[string]*Message),
		Emojis:   make(map[string]Emoji),
		Names:    make(map[string]string),
	}
}

func (p *Platform) id() string {
	p.nextID++
	return strconv.Itoa(p.nextID)
}

func (p *Platform) SendEmbed(_ context.Context, channelID string, embed *discordgo.MessageEmbed) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.id()
	p.Messages[id] = &Message{ChannelID: channelID, Embed: embed}
	return id, nil
}

func (p *Platform) SendText(_ context.Context, channelID, content string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Texts = append(p.Texts, Text{ChannelID: channelID, Content: content})
	return nil
}

func (p *Platform) EditEmbed(_ context.Context, _, messageID string, embed *discordgo.MessageEmbed) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.EditErr != nil {
		return p.EditErr
	}
	msg, ok := p.Messages[messageID]
	if !ok {
		return collector.ErrNotFound
	}
	msg.Embed = embed
	msg.Edits++
	return nil
}

func (p *Platform) DeleteMessage(_ context.Context, _, messageID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.Messages[messageID]; !ok {
		return collector.ErrNotFound
	}
	delete(p.Messages, messageID)
	p.Deleted = append(p.Deleted, messageID)
	return nil
}

func (p *Platform) SetActivity(_ context.Context, text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Activity = text
	return nil
}

func (p *Platform) CreateEmoji(_ context.Context, guildID, name string, png []byte) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.id()
	p.Emojis[id] = Emoji{GuildID: guildID, Name: name, PNG: png}
	return id, nil
}

func (p *Platform) DeleteEmoji(_ context.Context, _, emojiID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.Emojis[emojiID]; !ok {
		return collector.ErrNotFound
	}
	delete(p.Emojis, emojiID)
	p.Deleted = append(p.Deleted, emojiID)
	return nil
}

func (p *Platform) UserName(_ context.Context, userID string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Names[userID], nil
}

// LastText returns the most recent plain message, or "" when none was sent
func (p *Platform) LastText() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.Texts) == 0 {
		return ""
	}
	return p.Texts[len(p.Texts)-1].Content
}

// Embeds returns the embeds of all live messages in creation order
func (p *Platform) Embeds() []*discordgo.MessageEmbed {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []*discordgo.MessageEmbed
	for i := 1; i <= p.nextID; i++ {
		if msg, ok := p.Messages[strconv.Itoa(i)]; ok {
			out = append(out, msg.Embed)
		}
	}
	return out
}

// Live returns the number of messages that have not been deleted
func (p *Platform) Live() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Messages)
}

// Message returns a copy of the message with the given ID
func (p *Platform) Message(id string) (Message, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	msg, ok := p.Messages[id]
	if !ok {
		return Message{}, false
	}
	return *msg, true
}
