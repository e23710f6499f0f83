package main

import (
	"github.com/joho/godotenv"

	"waitgate/internal/waitlists/events"
	"waitgate/internal/waitlists/handler"
	"waitgate/internal/waitlists/repository"
	"waitgate/internal/waitlists/service"
	"waitgate/internal/waitlists/validator"
	"waitgate/pkg/app"
	"waitgate/pkg/authz"
	"waitgate/pkg/config"
	"waitgate/pkg/fields"
	"waitgate/pkg/kafka"
	kafka_config "waitgate/pkg/kafka/config"
	kafka_middleware "waitgate/pkg/kafka/middleware"
)

const ServiceName = "waitlist"

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := config.Load(ServiceName)
	cfg.SetMongo()

	application := app.NewApplication()

	waitlistSchema := composeSchema(cfg, fields.ComposeWaitlist, cfg.Policy.Schema.Waitlist)
	userSchema := composeSchema(cfg, fields.ComposeWaitlistUser, cfg.Policy.Schema.WaitlistUser)

	var evaluator authz.Evaluator
	if cfg.AuthzServiceURL != "" {
		evaluator = authz.NewHTTPEvaluator(cfg.AuthzServiceURL, cfg.AuthzTimeout)
	}

	var provisioner service.Provisioner
	if cfg.KafkaEnabled() {
		producer := newProducer(cfg)
		application.OnShutdown("kafka producer", producer)
		provisioner = events.NewKafkaProvisioner(producer)
	}

	svc := service.NewWaitlistService(service.Deps{
		Waitlists:      repository.NewMongoWaitlistRepository(cfg),
		Users:          repository.NewMongoWaitlistUserRepository(cfg),
		Locks:          repository.NewMongoWaitlistLockRepository(cfg),
		Validator:      validator.NewWaitlistValidator(waitlistSchema, userSchema),
		Gate:           authz.NewGate(evaluator, cfg.Log),
		Rules:          service.RulesFromPolicy(cfg.Policy.Permissions),
		Provisioner:    provisioner,
		WaitlistSchema: waitlistSchema,
		UserSchema:     userSchema,
		Config:         cfg,
	})

	h := handler.NewWaitlistHandler(svc, cfg.Log, cfg.Policy.DisableSessionMiddleware)
	application.SetApp(cfg, h)
	application.Run()
}

func composeSchema(cfg *config.Config, compose func(fields.Declarations) (*fields.Schema, error), policy config.ModelPolicy) *fields.Schema {
	schema, err := compose(fields.DeclarationsFromPolicy(policy.AdditionalFields))
	if err != nil {
		cfg.Log.Fatal("Invalid additional fields", "collection", policy.ModelName, "error", err)
	}
	cfg.Log.Info("Schema composed",
		"model", schema.Model(),
		"collection", policy.ModelName,
		"input", schema.Input(),
		"persisted", schema.Persisted(),
		"returned", schema.Output(),
		"requires_additional_input", schema.HasRequiredInput(),
	)
	return schema
}

func newProducer(cfg *config.Config) *kafka.Producer {
	kafkaCfg, err := kafka_config.Load(cfg.KafkaBrokers)
	if err != nil {
		cfg.Log.Fatal("Invalid Kafka configuration", "error", err)
	}
	kafkaCfg.LogConfiguration(cfg.Log.Info)

	producer, err := kafka.NewProducer(kafkaCfg, cfg.ProvisioningTopic, cfg.ProvisioningTopic+".dlq", cfg.Log)
	if err != nil {
		cfg.Log.Fatal("Failed to create Kafka producer", "error", err)
	}
	if kafkaCfg.EnableMiddleware {
		producer.Use(kafka_middleware.Logging(cfg.Log))
	}
	return producer
}
