// The auditor consumes transfer events from kafka and records them in the
// transfer_audit table, giving an independent trail of published transfers.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/nupay/banking-service/internal/database"
	"github.com/nupay/banking-service/internal/events"
	"github.com/nupay/banking-service/internal/model"
)

var logger = log.With().Str("pkg", "main").Logger()

var (
	// kafka
	kafkaBrokerUrl     string
	kafkaTopic         string
	kafkaConsumerGroup string

	// postgres
	host     string
	port     string
	user     string
	password string
	dbname   string
)

func main() {
	flag.StringVar(&kafkaBrokerUrl, "kafka-brokers", "localhost:19092,localhost:29092,localhost:39092", "Kafka brokers in comma separated value")
	flag.StringVar(&kafkaTopic, "kafka-topic", "transfers", "Kafka topic. Only one topic per worker.")
	flag.StringVar(&kafkaConsumerGroup, "kafka-consumer-group", "transfer-auditors", "Kafka consumer group")

	flag.StringVar(&host, "host", "localhost", "postgres host")
	flag.StringVar(&port, "port", "5432", "postgres port")
	flag.StringVar(&user, "user", "root", "postgres username")
	flag.StringVar(&password, "password", "root", "postgres password")
	flag.StringVar(&dbname, "dbname", "nupay-banking-pg", "postgres db name")

	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reader := events.NewReader(strings.Split(kafkaBrokerUrl, ","), kafkaConsumerGroup, kafkaTopic)
	defer reader.Close()

	db, err := database.NewClient(host, port, user, password, dbname)
	if err != nil {
		logger.Fatal().Msgf("error while connecting to database: %s", err.Error())
	}
	defer db.Close()
	if err := database.Migrate(db); err != nil {
		logger.Fatal().Msgf("error while migrating database: %s", err.Error())
	}
	store := database.NewStore(db)

	logger.Info().Str("topic", kafkaTopic).Msg("auditor started")
	for {
		m, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				logger.Info().Msg("got an interrupt, exiting...")
				return
			}
			logger.Error().Msgf("error while receiving message: %s", err.Error())
			continue
		}

		var ev model.TransferEvent
		if err = json.Unmarshal(m.Value, &ev); err != nil {
			logger.Error().Msgf("error while unmarshalling transfer event: %s", err.Error())
			continue
		}

		if err = store.RecordAudit(ctx, ev); err != nil {
			logger.Error().Str("transfer_id", ev.TransferID).Msgf("error while recording audit row: %s", err.Error())
			continue
		}
		logger.Debug().Str("transfer_id", ev.TransferID).Msg("audited transfer")
	}
}
