package service

import (
	"context"
	"testing"
	"time"

	"labeloo/app/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoleAuthorizer(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := env.project(t, "perm")

	annotator := &model.User{Username: "bob", Password: "x", IsActive: true}
	outsider := &model.User{Username: "carol", Password: "x", IsActive: true}
	sysAdmin := &model.User{Username: "root", Password: "x", IsActive: true, IsAdmin: true}
	for _, u := range []*model.User{annotator, outsider, sysAdmin} {
		require.NoError(t, env.db.Create(u).Error)
	}
	require.NoError(t, env.projects.AddMember(ctx, p.ID, annotator.ID, model.RoleAnnotator))

	authz := NewRoleAuthorizer(env.db, env.log, time.Minute)
	check := func(userID uint, action string) bool {
		ok, err := authz.MayPerform(ctx, userID, p.ID, action)
		require.NoError(t, err)
		return ok
	}

	// 创建者是项目管理员
	assert.True(t, check(env.user.ID, model.PermissionUploadFiles))
	assert.True(t, check(env.user.ID, model.PermissionEditProject))

	assert.True(t, check(annotator.ID, model.PermissionView))
	assert.False(t, check(annotator.ID, model.PermissionUploadFiles))
	assert.False(t, check(annotator.ID, model.PermissionEditProject))

	assert.False(t, check(outsider.ID, model.PermissionView))
	assert.True(t, check(sysAdmin.ID, model.PermissionDeleteProject))

	// 角色变更后需要清除缓存才能生效
	require.NoError(t, env.projects.AddMember(ctx, p.ID, annotator.ID, model.RoleAdmin))
	assert.False(t, check(annotator.ID, model.PermissionUploadFiles))
	authz.Invalidate(annotator.ID, p.ID)
	assert.True(t, check(annotator.ID, model.PermissionUploadFiles))
}

func TestProjectListForUser(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	mine := env.project(t, "mine")

	other := &model.User{Username: "dave", Password: "x", IsActive: true}
	require.NoError(t, env.db.Create(other).Error)
	_, err := env.projects.Create(ctx, other.ID, CreateProjectInput{Name: "theirs"})
	require.NoError(t, err)

	list, err := env.projects.ListForUser(ctx, env.user.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, mine.ID, list[0].ID)

	_, err = env.projects.Create(ctx, env.user.ID, CreateProjectInput{})
	assert.Error(t, err)
}
