package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/websocket"

	"lorebound.gg/internal/catalog"
	"lorebound.gg/internal/eligibility"
	"lorebound.gg/internal/progression"
	"lorebound.gg/internal/protocol"
	"lorebound.gg/internal/session"
)

func main() {
	var (
		url       = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		wallet    = flag.String("wallet", "bot", "wallet id to play as")
		configDir = flag.String("configs", "./configs", "catalog config directory (must match the server)")
		seed      = flag.Int64("seed", time.Now().UnixNano(), "story choice seed")
		maxQuests = flag.Int("max_quests", 0, "stop after this many quests (0 = play until nothing is available)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)

	cat, err := catalog.Load(*configDir)
	if err != nil {
		logger.Fatalf("load catalog: %v", err)
	}

	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		WalletID:        *wallet,
		ClientName:      "lorebound-bot",
		Capabilities:    protocol.HelloCapabilities{MaxQueue: 8},
	}
	if err := conn.WriteJSON(hello); err != nil {
		logger.Fatalf("send HELLO: %v", err)
	}

	b := &bot{conn: conn, cat: cat, log: logger, rng: rand.New(rand.NewSource(*seed))}
	if err := b.waitWelcome(); err != nil {
		logger.Fatalf("handshake: %v", err)
	}
	if b.welcome.CatalogDigest != cat.Digest() {
		logger.Printf("warning: server catalog %s differs from local %s", b.welcome.CatalogDigest, cat.Digest())
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)

	done := 0
	for *maxQuests == 0 || done < *maxQuests {
		select {
		case <-stop:
			return
		default:
		}
		b.unlockReachable()
		quests := eligibility.AvailableQuests(b.player, cat)
		if len(quests) == 0 {
			break
		}
		if err := b.play(quests[0]); err != nil {
			logger.Printf("quest %s: %v", quests[0].ID, err)
			return
		}
		done++
	}
	logger.Printf("done: level=%d xp=%d quests=%d traits=%v achievements=%v nfts=%v",
		b.player.Level, b.player.XP, len(b.player.CompletedQuestIDs), b.player.Traits, b.player.AchievementIDs, b.player.NFTIDs)
}

type bot struct {
	conn    *websocket.Conn
	cat     *catalog.Catalog
	log     *log.Logger
	rng     *rand.Rand
	welcome protocol.WelcomeMsg
	player  progression.Player
	nextAct int
}

func (b *bot) waitWelcome() error {
	_ = b.conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	_, msg, err := b.conn.ReadMessage()
	if err != nil {
		return err
	}
	if err := json.Unmarshal(msg, &b.welcome); err != nil {
		return err
	}
	if b.welcome.Type != protocol.TypeWelcome {
		return fmt.Errorf("expected WELCOME, got %s", b.welcome.Type)
	}
	b.player = b.welcome.View.Player
	b.log.Printf("WELCOME wallet=%s session=%s level=%d xp=%d ephemeral=%v",
		b.welcome.WalletID, b.welcome.SessionID, b.player.Level, b.player.XP, b.welcome.Ephemeral)
	return nil
}

// unlockReachable claims every zone the player now qualifies for.
func (b *bot) unlockReachable() {
	for _, z := range eligibility.ReachableZones(b.player, b.cat).Reachable {
		if _, err := b.act(session.Event{Kind: session.EventUnlockZone, ZoneID: z.ID}); err != nil {
			b.log.Printf("unlock %s: %v", z.ID, err)
			continue
		}
		b.log.Printf("unlocked zone %s", z.ID)
	}
}

func (b *bot) play(q catalog.Quest) error {
	if b.player.CurrentZoneID != q.ZoneID {
		if _, err := b.act(session.Event{Kind: session.EventEnterZone, ZoneID: q.ZoneID}); err != nil {
			return err
		}
	}
	if _, err := b.act(session.Event{Kind: session.EventStartQuest, QuestID: q.ID}); err != nil {
		return err
	}
	for _, o := range q.Objectives {
		if _, err := b.act(session.Event{Kind: session.EventAdvanceObjective, QuestID: q.ID, ObjectiveID: o.ID, Amount: o.Max}); err != nil {
			return err
		}
	}
	if len(q.StoryChoices) > 0 {
		c := q.StoryChoices[b.rng.Intn(len(q.StoryChoices))]
		if _, err := b.act(session.Event{Kind: session.EventChooseStory, QuestID: q.ID, ChoiceID: c.ID}); err != nil {
			return err
		}
	}
	res, err := b.act(session.Event{Kind: session.EventCompleteQuest, QuestID: q.ID})
	if err != nil {
		return err
	}
	b.log.Printf("completed %s: level=%d xp=%d achievements=%v", q.ID, res.Player.Level, res.Player.XP, res.Achievements)
	return nil
}

// act sends one ACT and reads frames until its ACK arrives.
func (b *bot) act(ev session.Event) (session.Result, error) {
	b.nextAct++
	id := fmt.Sprintf("A%d", b.nextAct)
	if err := b.conn.WriteJSON(protocol.ActMsg{
		Type:            protocol.TypeAct,
		ProtocolVersion: protocol.Version,
		ActID:           id,
		Action:          ev,
	}); err != nil {
		return session.Result{}, err
	}
	for {
		_ = b.conn.SetReadDeadline(time.Now().Add(30 * time.Second))
		_, msg, err := b.conn.ReadMessage()
		if err != nil {
			return session.Result{}, err
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			continue
		}
		switch base.Type {
		case protocol.TypeAck:
			var ack protocol.AckMsg
			if err := json.Unmarshal(msg, &ack); err != nil || ack.AckFor != id {
				continue
			}
			if !ack.Accepted {
				return session.Result{}, fmt.Errorf("%s rejected: %s %s", ev.Kind, ack.Code, ack.Message)
			}
			if ack.Result != nil {
				b.player = ack.Result.Player
				return *ack.Result, nil
			}
			return session.Result{}, nil
		case protocol.TypeWarning:
			var w protocol.WarningMsg
			if json.Unmarshal(msg, &w) == nil {
				b.log.Printf("WARNING %s: %s", w.Code, w.Message)
			}
		case protocol.TypeMinted:
			var m protocol.MintedMsg
			if json.Unmarshal(msg, &m) == nil {
				b.log.Printf("MINTED %s uri=%s", m.Receipt.NFTID, m.Receipt.URI)
			}
		}
	}
}
