package main

import (
	bookinghandler "medislot/internal/bookings/handler"
	bookingrepository "medislot/internal/bookings/repository"
	bookingservice "medislot/internal/bookings/service"
	bookingvalidator "medislot/internal/bookings/validator"
	identityhandler "medislot/internal/identity/handler"
	identityrepository "medislot/internal/identity/repository"
	identityservice "medislot/internal/identity/service"
	identityvalidator "medislot/internal/identity/validator"
	slothandler "medislot/internal/slots/handler"
	slotrepository "medislot/internal/slots/repository"
	slotservice "medislot/internal/slots/service"
	slotvalidator "medislot/internal/slots/validator"
	"medislot/pkg/app"
	"medislot/pkg/auth"
	"medislot/pkg/config"
	"medislot/pkg/kafka"
	kafka_config "medislot/pkg/kafka/config"
	kafka_middleware "medislot/pkg/kafka/middleware"
	"medislot/pkg/middleware"
)

const ServiceName = "medislot"

func main() {
	cfg := config.Load(ServiceName)
	cfg.SetMongo()
	cfg.SetRedis()

	cfg.Log.Info("Starting medislot service")
	serverApp := app.NewApplication(cfg)

	identity := initIdentity(cfg, serverApp)
	guard := middleware.NewGuard(identity, cfg.CookieName, cfg.Log)

	slots := initSlots(cfg)
	engine, ledger := initBookings(cfg)
	engine = bookingservice.WithMetrics(engine, serverApp.Metrics())

	serverApp.SetApp(
		identityhandler.NewIdentityHandler(identity, guard, cfg),
		slothandler.NewSlotHandler(slots, guard, cfg.Log),
		bookinghandler.NewBookingHandler(engine, ledger, guard, cfg.Location(), cfg.Log),
	)
	serverApp.Run()
}

func initIdentity(cfg *config.Config, serverApp *app.Application) identityservice.IdentityService {
	svc := identityservice.NewIdentityService(
		identityrepository.NewMongoUserRepository(cfg),
		identityvalidator.NewUserValidator(cfg.Log),
		auth.NewTokenManager(cfg.JWTSecret, cfg.SessionTTL),
		identityservice.NewBcryptHasher(cfg.BcryptCost),
		identityservice.WithDeliveryMetrics(initChallengeSender(cfg, serverApp), serverApp.Metrics()),
		cfg,
	)

	cfg.Log.Info("Identity service initialized", "database", cfg.MongoDatabaseName)
	return svc
}

func initChallengeSender(cfg *config.Config, serverApp *app.Application) identityservice.ChallengeSender {
	if !cfg.KafkaEnabled {
		cfg.Log.Info("Kafka disabled, verification codes are written to the log")
		return identityservice.NewLogChallengeSender(cfg.Log)
	}

	kafkaCfg, err := kafka_config.Load()
	if err != nil {
		cfg.Log.Fatal("Invalid Kafka configuration", "error", err)
	}
	kafkaCfg.LogConfiguration(cfg.Log)

	producer, err := kafka.NewProducer(kafkaCfg, cfg.ChallengeTopic, cfg.ChallengeDLQTopic, cfg.Log)
	if err != nil {
		cfg.Log.Fatal("Failed to create Kafka producer", "error", err)
	}
	if kafkaCfg.EnableMiddleware {
		producer.Use(kafka_middleware.LoggingProducerMiddleware(cfg.Log))
	}
	serverApp.OnShutdown(producer.Close)

	return identityservice.NewKafkaChallengeSender(producer, middleware.RequestID)
}

func initSlots(cfg *config.Config) slotservice.SlotService {
	svc := slotservice.NewSlotService(
		slotrepository.NewMongoSlotRepository(cfg),
		slotvalidator.NewSlotValidator(cfg.Log),
		cfg,
	)

	cfg.Log.Info("Slot service initialized", "database", cfg.MongoDatabaseName)
	return svc
}

func initBookings(cfg *config.Config) (bookingservice.ReservationEngine, bookingservice.BookingLedger) {
	repo := bookingrepository.NewMongoBookingRepository(cfg)
	engine := bookingservice.NewReservationEngine(
		repo,
		bookingrepository.NewMongoSlotStateRepository(cfg),
		bookingvalidator.NewBookingValidator(cfg.Log),
		cfg,
	)
	ledger := bookingservice.NewBookingLedger(repo, cfg)

	cfg.Log.Info("Booking services initialized", "database", cfg.MongoDatabaseName)
	return engine, ledger
}
