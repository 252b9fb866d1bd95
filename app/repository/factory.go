package repository

import (
	"sync"

	"gorm.io/gorm"
)

// Repositories bundles all repository instances.
type Repositories struct {
	User         UserRepository
	Subscription SubscriptionRepository
	Trial        TrialRepository
	PlanMapping  PlanMappingRepository
	WebhookEvent WebhookEventRepository
}

// NewRepositories creates all repositories against one DB handle.
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		User:         NewUserRepository(db),
		Subscription: NewSubscriptionRepository(db),
		Trial:        NewTrialRepository(db),
		PlanMapping:  NewPlanMappingRepository(db),
		WebhookEvent: NewWebhookEventRepository(db),
	}
}

// Factory manages repository instances and ensures they are singletons
type Factory struct {
	db    *gorm.DB
	repos *Repositories
	once  sync.Once
}

// NewFactory creates a new repository factory
func NewFactory(db *gorm.DB) *Factory {
	return &Factory{
		db: db,
	}
}

// GetRepositories returns a singleton instance of all repositories
func (f *Factory) GetRepositories() *Repositories {
	f.once.Do(func() {
		f.repos = NewRepositories(f.db)
	})
	return f.repos
}

// GetUserRepository returns the user repository instance
func (f *Factory) GetUserRepository() UserRepository {
	return f.GetRepositories().User
}

// GetSubscriptionRepository returns the subscription repository instance
func (f *Factory) GetSubscriptionRepository() SubscriptionRepository {
	return f.GetRepositories().Subscription
}

// GetTrialRepository returns the trial repository instance
func (f *Factory) GetTrialRepository() TrialRepository {
	return f.GetRepositories().Trial
}

// GetPlanMappingRepository returns the plan mapping repository instance
func (f *Factory) GetPlanMappingRepository() PlanMappingRepository {
	return f.GetRepositories().PlanMapping
}

// GetWebhookEventRepository returns the webhook event repository instance
func (f *Factory) GetWebhookEventRepository() WebhookEventRepository {
	return f.GetRepositories().WebhookEvent
}

var (
	globalFactory     *Factory
	globalFactoryOnce sync.Once
)

// InitGlobalFactory wires the process-wide factory. Called once at startup
// after the database connection is established.
func InitGlobalFactory(db *gorm.DB) {
	globalFactoryOnce.Do(func() {
		globalFactory = NewFactory(db)
	})
}

// GetGlobalFactory returns the process-wide repository factory.
func GetGlobalFactory() *Factory {
	if globalFactory == nil {
		panic("repository factory not initialized")
	}
	return globalFactory
}
