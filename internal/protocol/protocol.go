package protocol

import "strings"

// Topic templates. Each "+" segment is a placeholder filled in order by Topic.
const (
	// server -> client
	TopicGames      = "traze/games"
	TopicGrid       = "traze/+/grid"
	TopicPlayers    = "traze/+/players"
	TopicTicker     = "traze/+/ticker"
	TopicPlayerInfo = "traze/+/player/+"

	// client -> server
	TopicJoin  = "traze/+/join"
	TopicSteer = "traze/+/+/steer"
	TopicBail  = "traze/+/+/bail"
)

// Topic fills the "+" segments of template with args, left to right.
// Placeholders without a matching arg stay "+", so a partially filled
// template is still a valid wildcard subscription.
func Topic(template string, args ...string) string {
	if len(args) == 0 {
		return template
	}
	parts := strings.Split(template, "/")
	next := 0
	for i, p := range parts {
		if p != "+" || next >= len(args) {
			continue
		}
		parts[i] = args[next]
		next++
	}
	return strings.Join(parts, "/")
}

func GridTopic(game string) string    { return Topic(TopicGrid, game) }
func PlayersTopic(game string) string { return Topic(TopicPlayers, game) }
func TickerTopic(game string) string  { return Topic(TopicTicker, game) }
func JoinTopic(game string) string    { return Topic(TopicJoin, game) }

// PlayerInfoTopic is where the join acknowledgement for correlationID arrives.
func PlayerInfoTopic(game, correlationID string) string {
	return Topic(TopicPlayerInfo, game, correlationID)
}

func SteerTopic(game, playerID string) string { return Topic(TopicSteer, game, playerID) }
func BailTopic(game, playerID string) string  { return Topic(TopicBail, game, playerID) }
